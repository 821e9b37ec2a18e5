package mcp

import "testing"

func TestNamespacedNameRoundTrip(t *testing.T) {
	name := NamespacedName("filesystem", "read_file")
	if name != "mcp_filesystem_read_file" {
		t.Fatalf("name = %q, want mcp_filesystem_read_file", name)
	}
	server, tool, ok := ParseNamespacedName(name)
	if !ok {
		t.Fatalf("expected ok")
	}
	if server != "filesystem" || tool != "read_file" {
		t.Fatalf("server=%q tool=%q, want filesystem/read_file", server, tool)
	}
}

func TestParseNamespacedNameRejectsNonMCP(t *testing.T) {
	if _, _, ok := ParseNamespacedName("read_file"); ok {
		t.Fatalf("expected ok=false for a non-namespaced name")
	}
}
