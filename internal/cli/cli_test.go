package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dctwin/internal/core/capacity"
	"dctwin/internal/core/lifecycle"
	"dctwin/internal/domain"
	"dctwin/internal/service"
)

const sceneYAML = `site:
  id: S1
  name: Frankfurt
rooms:
  - id: RM1
    name: Hall A
    racks:
      - id: R1
        name: A01
        u_height: 42
        power_kw_limit: 10
        current_power_kw: 2
        devices:
          - id: d1
            name: web-01
            u_start: 1
            u_height: 2
            power_kw: 3
            logical_equipment_id: L1
      - id: R2
        name: A02
        u_height: 42
        power_kw_limit: 10
        current_power_kw: 2
        devices:
          - id: d2
            name: db-01
            u_start: 5
            u_height: 4
            power_kw: 6
            logical_equipment_id: L2
      - id: R3
        name: A03
        u_height: 42
        power_kw_limit: 10
        current_power_kw: 2
`

const scanYAML = `records:
  - logical_equipment_id: L1
    rack_id: R1
    u_start: 1
    u_height: 2
  - logical_equipment_id: L9
    rack_id: R3
    u_start: 20
    u_height: 1
`

func init() {
	// exact-output assertions must not see ANSI codes when run from a terminal
	color.NoColor = true
}

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "dctwin.yaml")
	data := "database:\n  dialect: sqlite\n  dsn: " + filepath.Join(dir, "twin.db") + "\n"
	require.NoError(t, os.WriteFile(cfg, []byte(data), 0644))
	return &workspace{dir: dir, config: cfg}
}

func (ws *workspace) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(ws.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// run executes one command and returns stdout, stderr and the error
func (ws *workspace) run(args ...string) (string, string, error) {
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", ws.config}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func runJSON[T any](t *testing.T, ws *workspace, args ...string) T {
	t.Helper()
	out, _, err := ws.run(append(args, "--json")...)
	require.NoError(t, err, out)
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func (ws *workspace) seed(t *testing.T) {
	t.Helper()
	result := runJSON[service.ImportResult](t, ws, "import", ws.file(t, "scene.yaml", sceneYAML), "--user", "ops")
	require.Equal(t, "S1", result.SiteID)
}

func TestRootCommand_Help(t *testing.T) {
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "dctwinctl")
	assert.Contains(t, buf.String(), "capacity")
}

func TestRootCommand_Version(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("dev")

	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "1.2.3\n", buf.String())
}

func TestMigrate(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := ws.run("migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema ready (sqlite)")
	assert.FileExists(t, filepath.Join(ws.dir, "twin.db"))
}

func TestImportAndSites(t *testing.T) {
	ws := newWorkspace(t)

	result := runJSON[service.ImportResult](t, ws, "import", ws.file(t, "scene.yaml", sceneYAML))
	assert.Equal(t, 1, result.Rooms)
	assert.Equal(t, 3, result.Racks)
	assert.Equal(t, 2, result.Devices)

	sites := runJSON[[]domain.Site](t, ws, "sites")
	require.Len(t, sites, 1)
	assert.Equal(t, "Frankfurt", sites[0].Name)

	out, _, err := ws.run("sites")
	require.NoError(t, err)
	assert.Contains(t, out, "Frankfurt")

	_, _, err = ws.run("import", ws.file(t, "scene.yaml", sceneYAML))
	assert.ErrorIs(t, err, domain.ErrValidation, "site already exists")

	_, _, err = ws.run("import", ws.file(t, "scene.csv", "id,name"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestExport(t *testing.T) {
	ws := newWorkspace(t)
	ws.seed(t)

	out, _, err := ws.run("export", "S1")
	require.NoError(t, err)
	assert.Contains(t, out, "logical_equipment_id: L2")

	path := filepath.Join(ws.dir, "out.json")
	_, _, err = ws.run("export", "S1", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	_, _, err = ws.run("export", "S9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMoveAndHistory(t *testing.T) {
	ws := newWorkspace(t)
	ws.seed(t)

	outcome := runJSON[lifecycle.MoveOutcome](t, ws, "move", "d1", "--rack", "R3", "--u", "10", "--phase", "TO_BE", "--user", "ops")
	assert.Equal(t, "R3", outcome.Device.RackID)
	assert.Equal(t, 10, outcome.Device.UStart)
	assert.NotEmpty(t, outcome.ChangeSetID)

	_, stderr, err := ws.run("move", "d2", "--rack", "R3", "--u", "11", "--phase", "TO_BE")
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "R3", ce.RackID)
	assert.Contains(t, stderr, "d1")

	_, _, err = ws.run("move", "d1", "--rack", "R3", "--u", "10", "--phase", "LATER")
	assert.ErrorIs(t, err, domain.ErrValidation)

	history := runJSON[[]domain.EquipmentHistory](t, ws, "history", "d1")
	var kinds []domain.ModificationType
	for _, h := range history {
		kinds = append(kinds, h.ModificationType)
	}
	assert.ElementsMatch(t, []domain.ModificationType{domain.ModificationIngest, domain.ModificationMove}, kinds)

	out, _, err := ws.run("history", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "R3/U10")
}

func TestCapacity(t *testing.T) {
	ws := newWorkspace(t)
	ws.seed(t)

	block := runJSON[*capacity.Block](t, ws, "capacity", "S1", "--phase", "TO_BE")
	require.NotNil(t, block)
	assert.Equal(t, "RM1", block.RoomID)
	assert.Equal(t, []string{"R1", "R2", "R3"}, block.RackIDs)

	out, _, err := ws.run("capacity", "S1")
	require.NoError(t, err)
	assert.Contains(t, out, "R1, R2, R3")

	_, _, err = ws.run("capacity", "S1", "--phase", "NOW")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAnomalies(t *testing.T) {
	ws := newWorkspace(t)
	ws.seed(t)
	scan := ws.file(t, "scan.yaml", scanYAML)

	preview := runJSON[[]domain.Anomaly](t, ws, "anomalies", "detect", "S1", scan)
	require.NotEmpty(t, preview)

	first := runJSON[service.SaveResult](t, ws, "anomalies", "detect", "S1", scan, "--save")
	assert.Equal(t, len(preview), first.Detected)
	assert.Equal(t, first.Detected, first.Saved)

	second := runJSON[service.SaveResult](t, ws, "anomalies", "detect", "S1", scan, "--save")
	assert.Zero(t, second.Saved, "same scan content saves nothing twice")

	list := runJSON[[]domain.Anomaly](t, ws, "anomalies", "list", "S1", "--status", "OPEN")
	assert.Len(t, list, first.Saved)

	path := filepath.Join(ws.dir, "anomalies.xlsx")
	_, _, err := ws.run("anomalies", "export", "S1", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	_, _, err = ws.run("anomalies", "list", "S1", "--status", "LOST")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"ID", "Name"}, [][]string{{"R1", "A01"}, {"R10", "B"}})
	assert.Equal(t, "  ID   Name\n  R1   A01\n  R10  B\n", buf.String())

	buf.Reset()
	printTable(&buf, []string{"ID"}, nil)
	assert.Empty(t, buf.String())
}
