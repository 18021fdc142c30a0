// example.go - Starter scene and data files for memestencil init.
package scene

// ExampleJSON returns a sample scene.json and data.json.
func ExampleJSON() (sceneJSON, dataJSON string) {
	sceneJSON = `{
  "meta": {
    "name": "Classic Top/Bottom",
    "version": "1.0",
    "author": "MemeStencil",
    "description": "Two captions over a plain background"
  },
  "canvas": { "preset": "editor" },
  "background": {
    "color": "#3a3a3a",
    "width": 800,
    "height": 800
  },
  "filter": "none",
  "fonts": {},
  "layers": [
    {
      "type": "text",
      "id": "top",
      "content": "WHEN THE CODE COMPILES",
      "x": 50, "y": 15,
      "color": "#FFFFFF",
      "fontSize": 48,
      "boxWidth": 520,
      "textAlign": "center",
      "fontFamily": "Oswald"
    },
    {
      "type": "text",
      "id": "bottom",
      "content": "ON THE FIRST TRY",
      "x": 50, "y": 85,
      "rotation": 0,
      "color": "#FFFFFF",
      "fontSize": 48,
      "boxWidth": 520,
      "textAlign": "center",
      "fontFamily": "Anton"
    }
  ],
  "schema": {
    "description": "Override captions and toggle layers via data.json",
    "layers": {
      "top": {
        "description": "Top caption",
        "fields": {
          "visible": "boolean, show/hide",
          "content": "string, caption text",
          "color": "string, #rrggbb"
        }
      },
      "bottom": {
        "description": "Bottom caption",
        "fields": {
          "visible": "boolean",
          "content": "string"
        }
      }
    }
  }
}`

	dataJSON = `{
  "filter": "Vintage",
  "layers": {
    "top": {
      "content": "WHEN THE TESTS PASS"
    },
    "bottom": {
      "content": "WITHOUT RUNNING THEM",
      "color": "#FFD400"
    }
  }
}`
	return
}
