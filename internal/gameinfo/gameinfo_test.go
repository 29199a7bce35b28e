package gameinfo

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleGameInfo = `"GameInfo"
{
	game	"Test Mod"

	FileSystem
	{
		SteamAppId	243750

		SearchPaths
		{
			game+mod	|gameinfo_path|.
			game		|gameinfo_path|custom/*
			game		"hl2/hl2_textures.vpk"	// archives are opaque
			game		|all_source_engine_paths|hl2
			game		cstrike
			platform	|all_source_engine_paths|platform
			game+mod	|gameinfo_path|.
		}
	}
}
`

func writeGameInfo(t *testing.T, content string) string {
	t.Helper()
	base := t.TempDir()
	modDir := filepath.Join(base, "testmod")
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(modDir, "gameinfo.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSearchPaths(t *testing.T) {
	path := writeGameInfo(t, sampleGameInfo)
	info, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	modDir := filepath.Dir(path)
	engineRoot := filepath.Dir(modDir)
	want := []string{
		modDir,
		filepath.Join(modDir, "custom"),
		filepath.Join(engineRoot, "hl2"),
		filepath.Join(engineRoot, "cstrike"),
	}
	if len(info.SearchPaths) != len(want) {
		t.Fatalf("SearchPaths = %v, want %v", info.SearchPaths, want)
	}
	for i := range want {
		if info.SearchPaths[i] != want[i] {
			t.Errorf("SearchPaths[%d] = %s, want %s", i, info.SearchPaths[i], want[i])
		}
	}
}

func TestLoadNoSearchPathsFallsBack(t *testing.T) {
	path := writeGameInfo(t, "\"GameInfo\"\n{\n\tgame \"Bare Mod\"\n}\n")
	info, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.SearchPaths) != 1 || info.SearchPaths[0] != filepath.Dir(path) {
		t.Fatalf("SearchPaths = %v, want just the mod dir", info.SearchPaths)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "gameinfo.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
