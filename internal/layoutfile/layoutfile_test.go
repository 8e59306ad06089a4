package layoutfile

import "testing"

func TestParseSimpleSplit(t *testing.T) {
	raw := []byte(`{
		// a two-pane editor layout
		window: editor
		root: {
			direction: horizontal
			children: [
				{ command: "vim", cwd: "/src" }
				{ command: "bash" }
			]
		}
	}`)

	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Window != "editor" {
		t.Fatalf("Window = %q, want editor", doc.Window)
	}
	if doc.Root.Direction != "horizontal" {
		t.Fatalf("Root.Direction = %q, want horizontal", doc.Root.Direction)
	}
	if len(doc.Root.Children) != 2 {
		t.Fatalf("len(Children) = %d, want 2", len(doc.Root.Children))
	}
	if doc.Root.Children[0].Command != "vim" || doc.Root.Children[0].Cwd != "/src" {
		t.Fatalf("Children[0] = %+v", doc.Root.Children[0])
	}
}

func TestParseLeafOnly(t *testing.T) {
	doc, err := Parse([]byte(`{root: {command: "htop"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Root.Direction != "" || doc.Root.Command != "htop" {
		t.Fatalf("Root = %+v", doc.Root)
	}
}

func TestParseRejectsBadChildCount(t *testing.T) {
	_, err := Parse([]byte(`{root: {direction: "horizontal", children: [{command: "a"}]}}`))
	if err == nil {
		t.Fatal("expected error for split with 1 child")
	}
}

func TestParseRejectsUnknownDirection(t *testing.T) {
	_, err := Parse([]byte(`{root: {direction: "diagonal", children: [{command:"a"},{command:"b"}]}}`))
	if err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestToLayoutSpec(t *testing.T) {
	doc, err := Parse([]byte(`{
		window: dev
		root: {direction: "vertical", children: [{command: "a"}, {command: "b"}]}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	spec := doc.ToLayoutSpec()
	if spec.WindowName != "dev" {
		t.Fatalf("WindowName = %q", spec.WindowName)
	}
	if spec.Root.Direction != "vertical" || len(spec.Root.Children) != 2 {
		t.Fatalf("Root = %+v", spec.Root)
	}
}
