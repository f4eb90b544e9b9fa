package v8serialize

import (
	"encoding/json"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acolita/v8clone/pkg/v8value"
)

// TestCrossVersionCompatibility tests parsing of fixtures generated by
// different Node.js versions (V8 format versions 14, 15).
func TestCrossVersionCompatibility(t *testing.T) {
	versions := []struct {
		dir         string
		nodeVersion string
	}{
		{"v14", "20.x"},
		{"v15", "22.x"},
	}

	fixturesBase := filepath.Join("..", "..", "testdata", "fixtures")

	for _, v := range versions {
		versionDir := filepath.Join(fixturesBase, v.dir)
		if _, err := os.Stat(versionDir); os.IsNotExist(err) {
			t.Logf("Skipping %s (Node.js %s): fixtures not generated yet", v.dir, v.nodeVersion)
			t.Logf("Run 'cd testgen && ./generate-all.sh' to generate fixtures")
			continue
		}

		t.Run(v.dir, func(t *testing.T) {
			testVersionFixtures(t, versionDir, v.nodeVersion)
		})
	}
}

type fixtureMetadata struct {
	NodeVersion string `json:"nodeVersion"`
	V8Version   string `json:"v8Version"`
	ByteLength  int    `json:"byteLength"`
	Description string `json:"description"`
}

func testVersionFixtures(t *testing.T, fixturesDir string, nodeVersion string) {
	entries, err := os.ReadDir(fixturesDir)
	if err != nil {
		t.Fatalf("failed to read fixtures dir: %v", err)
	}

	var binFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".bin") {
			binFiles = append(binFiles, entry.Name())
		}
	}

	if len(binFiles) == 0 {
		t.Skip("no fixtures found")
	}

	t.Logf("Testing %d fixtures from Node.js %s", len(binFiles), nodeVersion)

	skipFixtures := map[string]bool{
		"boxed-bigint": true, // Node.js can't serialize boxed BigInt
	}

	for _, binFile := range binFiles {
		name := strings.TrimSuffix(binFile, ".bin")

		if skipFixtures[name] {
			t.Run(name, func(t *testing.T) {
				t.Skip("known unsupported fixture")
			})
			continue
		}

		t.Run(name, func(t *testing.T) {
			binPath := filepath.Join(fixturesDir, binFile)
			jsonPath := filepath.Join(fixturesDir, name+".json")

			binData, err := os.ReadFile(binPath)
			if err != nil {
				t.Fatalf("failed to read %s: %v", binPath, err)
			}

			v, _, err := Parse(binData)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			if jsonData, err := os.ReadFile(jsonPath); err == nil {
				var meta fixtureMetadata
				if err := json.Unmarshal(jsonData, &meta); err == nil {
					t.Logf("Node %s, V8 %s, %d bytes: %s",
						meta.NodeVersion, meta.V8Version, meta.ByteLength, meta.Description)
				}
			}

			_ = v.Kind()
			_ = v.GoString()
		})
	}
}

// TestVersionDetection verifies version is correctly detected from each format.
func TestVersionDetection(t *testing.T) {
	tests := []struct {
		name    string
		header  []byte
		version uint32
		valid   bool
	}{
		{"v14", []byte{0xFF, 0x0E, '0'}, 14, true},
		{"v15", []byte{0xFF, 0x0F, '0'}, 15, true},
		{"v13-unsupported", []byte{0xFF, 0x0D, '0'}, 13, false},
		{"v16-unsupported", []byte{0xFF, 0x10, '0'}, 16, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeserializer(tt.header)
			_, _, err := d.Parse()

			if tt.valid {
				if err != nil {
					t.Errorf("expected valid, got error: %v", err)
				}
				if d.Version() != tt.version {
					t.Errorf("expected version %d, got %d", tt.version, d.Version())
				}
			} else {
				if err == nil {
					t.Errorf("expected error for unsupported version")
				}
			}
		})
	}
}

// TestRoundTripAcrossVersions verifies that data serialized by Go uses a
// format that should be readable across supported V8 versions: we
// always emit version 15, which is forward-compatible for basic types.
func TestRoundTripAcrossVersions(t *testing.T) {
	testCases := []struct {
		name string
		make func() (v8value.Value, *v8value.Heap)
	}{
		{"null", simpleCase(v8value.Null())},
		{"undefined", simpleCase(v8value.Undefined())},
		{"bool-true", simpleCase(v8value.Bool(true))},
		{"bool-false", simpleCase(v8value.Bool(false))},
		{"int32-zero", simpleCase(v8value.I32(0))},
		{"int32-pos", simpleCase(v8value.I32(42))},
		{"int32-neg", simpleCase(v8value.I32(-42))},
		{"int32-max", simpleCase(v8value.I32(2147483647))},
		{"int32-min", simpleCase(v8value.I32(-2147483648))},
		{"double", simpleCase(v8value.Double(3.14159))},
		{"string-empty", simpleCase(v8value.StringVal(v8value.NewString("")))},
		{"string-ascii", simpleCase(v8value.StringVal(v8value.NewString("hello")))},
		{"string-utf8", simpleCase(v8value.StringVal(v8value.NewString("你好🌍")))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			val, heap := tc.make()

			data, err := Serialize(heap, val)
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}

			got, gotHeap, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			if got.Kind() != val.Kind() {
				t.Errorf("kind mismatch: got %s, want %s", got.Kind(), val.Kind())
			}
			if !v8value.Equal(got, gotHeap, val, heap) {
				t.Errorf("value mismatch after round trip")
			}
		})
	}
}

func simpleCase(v v8value.Value) func() (v8value.Value, *v8value.Heap) {
	return func() (v8value.Value, *v8value.Heap) { return v, v8value.NewHeap() }
}

// TestGoToNodeRoundTrip verifies that data serialized by Go can be
// deserialized by Node.js. Requires Node.js to be installed.
func TestGoToNodeRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("Node.js not available")
	}

	tempDir, err := os.MkdirTemp("", "go-v8clone-fixtures-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	builder := v8value.NewHeapBuilder()
	objRef := builder.Insert(v8value.Object([]v8value.Property{
		{Key: v8value.PropertyKeyString(v8value.NewString("a")), Value: v8value.I32(1)},
		{Key: v8value.PropertyKeyString(v8value.NewString("b")), Value: v8value.I32(2)},
	}))
	arrRef := builder.Insert(v8value.DenseArray([]v8value.Value{v8value.I32(1), v8value.I32(2), v8value.I32(3)}, nil))
	heap := builder.Build()

	testCases := []struct {
		name  string
		value v8value.Value
	}{
		{"null", v8value.Null()},
		{"undefined", v8value.Undefined()},
		{"bool-true", v8value.Bool(true)},
		{"bool-false", v8value.Bool(false)},
		{"int32-zero", v8value.I32(0)},
		{"int32-positive", v8value.I32(42)},
		{"int32-negative", v8value.I32(-42)},
		{"double-pi", v8value.Double(3.14159265358979)},
		{"double-infinity", v8value.Double(math.Inf(1))},
		{"double-neg-infinity", v8value.Double(math.Inf(-1))},
		{"double-nan", v8value.Double(math.NaN())},
		{"string-empty", v8value.StringVal(v8value.NewString(""))},
		{"string-ascii", v8value.StringVal(v8value.NewString("hello"))},
		{"string-utf16", v8value.StringVal(v8value.NewString("你好世界"))},
		{"string-emoji", v8value.StringVal(v8value.NewString("🎉🎊🎈"))},
		{"object-simple", v8value.HeapRef(objRef)},
		{"array-numbers", v8value.HeapRef(arrRef)},
	}

	for _, tc := range testCases {
		data, err := Serialize(heap, tc.value)
		if err != nil {
			t.Errorf("failed to serialize %s: %v", tc.name, err)
			continue
		}
		binPath := filepath.Join(tempDir, tc.name+".bin")
		if err := os.WriteFile(binPath, data, 0644); err != nil {
			t.Errorf("failed to write %s: %v", tc.name, err)
		}
	}

	verifyScript := filepath.Join("..", "..", "testgen", "verify.js")
	if _, err := os.Stat(verifyScript); err != nil {
		t.Skip("verify.js not present")
	}
	cmd := exec.Command("node", verifyScript, "--dir", tempDir)
	output, err := cmd.CombinedOutput()

	t.Logf("Node.js verification output:\n%s", output)
	if err != nil {
		t.Errorf("Node.js verification failed: %v", err)
	}
}

// TestGoToNodeRoundTripWithDocker tests Go -> Node deserialization using
// Docker containers for specific Node.js versions. Requires Docker.
func TestGoToNodeRoundTripWithDocker(t *testing.T) {
	if os.Getenv("V8CLONE_TEST_DOCKER") == "" {
		t.Skip("Set V8CLONE_TEST_DOCKER=1 to run Docker-based tests")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	tempDir, err := os.MkdirTemp("", "go-v8clone-docker-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	fixtures := []struct {
		name  string
		value v8value.Value
	}{
		{"null", v8value.Null()},
		{"int32", v8value.I32(42)},
		{"string", v8value.StringVal(v8value.NewString("hello"))},
	}

	heap := v8value.NewHeap()
	for _, f := range fixtures {
		data, err := Serialize(heap, f.value)
		if err != nil {
			t.Fatalf("failed to serialize %s: %v", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(tempDir, f.name+".bin"), data, 0644); err != nil {
			t.Fatalf("failed to write %s: %v", f.name, err)
		}
	}

	verifyScript, _ := os.ReadFile(filepath.Join("..", "..", "testgen", "verify.js"))
	os.WriteFile(filepath.Join(tempDir, "verify.js"), verifyScript, 0755)

	nodeVersions := []string{"20", "22"}

	for _, nodeVer := range nodeVersions {
		t.Run("node"+nodeVer, func(t *testing.T) {
			cmd := exec.Command("docker", "run", "--rm",
				"-v", tempDir+":/data",
				"-w", "/data",
				"node:"+nodeVer+"-alpine",
				"node", "verify.js", "--dir", "/data")

			output, err := cmd.CombinedOutput()
			t.Logf("Node %s output:\n%s", nodeVer, output)

			if err != nil {
				t.Errorf("Node %s verification failed: %v", nodeVer, err)
			}
		})
	}
}

// BenchmarkCrossVersionParse benchmarks parsing across fixture formats.
func BenchmarkCrossVersionParse(b *testing.B) {
	fixturesBase := filepath.Join("..", "..", "testdata", "fixtures")

	var binData []byte
	paths := []string{
		filepath.Join(fixturesBase, "object-types.bin"),
		filepath.Join(fixturesBase, "v15", "object-types.bin"),
	}

	for _, p := range paths {
		if data, err := os.ReadFile(p); err == nil {
			binData = data
			break
		}
	}

	if binData == nil {
		b.Skip("no fixtures available")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Parse(binData)
	}
}
