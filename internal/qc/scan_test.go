package qc

import (
	"reflect"
	"sort"
	"testing"
)

func TestReadMaterialsCombinesCDMaterials(t *testing.T) {
	dir := t.TempDir()
	qc := writeFile(t, dir, "model.qc", `
$cdmaterials "models/props/"
$texturegroup "skinfamilies"
{
	{ "cloth1" "metal1" }
	{ "cloth2" "metal2" }
}
`)
	got := ReadMaterials(qc, []string{"cloth1"})

	want := []string{
		"cloth1",
		"models/props/cloth1",
		"models/props/cloth2",
		"models/props/metal1",
		"models/props/metal2",
	}
	for _, m := range want {
		if !contains(got, m) {
			t.Errorf("missing material %q in %v", m, got)
		}
	}
}

func TestReadMaterialsRename(t *testing.T) {
	dir := t.TempDir()
	qc := writeFile(t, dir, "model.qc",
		"$renamematerial \"old_mat\" \"new_mat\"\n$cdmaterials \"models/x\"\n")
	got := ReadMaterials(qc, []string{"old_mat"})
	if !contains(got, "new_mat") {
		t.Errorf("dumped material should be renamed, got %v", got)
	}
	if !contains(got, "models/x/new_mat") {
		t.Errorf("renamed material should be combined with cdmaterials, got %v", got)
	}
}

func TestReadMaterialsNoCDMaterials(t *testing.T) {
	dir := t.TempDir()
	qc := writeFile(t, dir, "model.qc", "$body body \"ref\"\n")
	got := ReadMaterials(qc, []string{"plain"})
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"plain", "plain"}) {
		t.Errorf("got %v", got)
	}
}

func TestReadMaterialsMissingFileReturnsDumped(t *testing.T) {
	got := ReadMaterials("/nonexistent/model.qc", []string{"a", "b"})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("got %v", got)
	}
}

func TestReadIncludesFollowsChain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c.qci", "leaf\n")
	writeFile(t, dir, "b.qci", "$include \"c.qci\"\n")
	qc := writeFile(t, dir, "model.qc", "$include \"b.qci\"\n")

	got := ReadIncludes(qc)
	if len(got) != 2 {
		t.Fatalf("expected 2 includes, got %v", got)
	}
}

func TestReadIncludesCycleSafe(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.qci", "$include \"b.qci\"\n")
	writeFile(t, dir, "b.qci", "$include \"a.qci\"\n")
	qc := writeFile(t, dir, "model.qc", "$include \"a.qci\"\n")

	got := ReadIncludes(qc)
	if len(got) > 3 {
		t.Fatalf("cycle not bounded: %v", got)
	}
}

func TestReadMaterialsFromInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.qci", "$cdmaterials \"models/shared\"\n")
	qc := writeFile(t, dir, "model.qc", "$include \"shared.qci\"\n")
	got := ReadMaterials(qc, []string{"mat"})
	if !contains(got, "models/shared/mat") {
		t.Errorf("cdmaterials from include not applied, got %v", got)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
