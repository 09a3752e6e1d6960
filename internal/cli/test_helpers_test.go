package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// nestedGraph is the module graph of the nested_blocks scenario: C is
// available when B#0 loads, so its chunk empties and is removed.
const nestedGraph = `
entries:
  - name: E
    dependencies: [A]
modules:
  - id: A
    sizes: {javascript: 100}
    blocks: ["A#0"]
  - id: B
    sizes: {javascript: 100}
    blocks: ["B#0"]
  - id: C
    sizes: {javascript: %d}
blocks:
  - id: "A#0"
    dependencies: [B, C]
  - id: "B#0"
    dependencies: [C]
`

const nestedRender = `group 1 entrypoint name=E initial=true runtime=E parents=[] chunks=[1]
group 2 normal name=- initial=false runtime=E parents=[1] chunks=[2]
group 3 normal name=- initial=false runtime=E parents=[2] chunks=[]
chunk 1 entry name=E runtime=E groups=[1] modules=[A] entry=[A]
chunk 2 async name=- runtime=E groups=[2] modules=[B,C]
block A#0 -> 2
block B#0 -> 3
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse unmarshals a JSON CLIResponse, decoding its data into v.
func decodeResponse(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if v != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}
