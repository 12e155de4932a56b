package external_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/external"
	"radarflow/internal/product"
	"radarflow/internal/services"
	"radarflow/internal/state"
	"radarflow/internal/testsupport"
)

var volume = state.Volume{
	VolumeID: "RMA1_0315_01_2025-01-01T12:00:00Z",
	Source:   "RMA1",
	Observed: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
}

func TestCommandDecoderReturnsLastLine(t *testing.T) {
	dir := t.TempDir()
	script := testsupport.WriteScript(t, filepath.Join(dir, "decode"), `out="$2"; shift 2
echo "decoding $# files"
: > "$out/merged.nc"
echo "$out/merged.nc"
echo
`)
	outDir := filepath.Join(dir, "netcdf")
	decoder, err := external.NewCommandDecoder([]string{script, "--out", "{output_dir}"}, outDir)
	if err != nil {
		t.Fatalf("NewCommandDecoder: %v", err)
	}

	artifact, err := decoder.DecodeAndMerge(context.Background(), volume, []string{"a.BUFR", "b.BUFR"})
	if err != nil {
		t.Fatalf("DecodeAndMerge: %v", err)
	}
	if artifact != filepath.Join(outDir, "merged.nc") {
		t.Fatalf("artifact = %q", artifact)
	}
}

func TestCommandDecoderFailures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "exit status", body: "echo 'no readable sweeps' >&2\nexit 2\n", want: "no readable sweeps"},
		{name: "no output", body: "exit 0\n", want: "no artifact path"},
		{name: "missing artifact", body: "echo /nonexistent/merged.nc\n", want: "artifact not written"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			script := testsupport.WriteScript(t, filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")), tc.body)
			decoder, err := external.NewCommandDecoder([]string{script}, filepath.Join(dir, "out"))
			if err != nil {
				t.Fatalf("NewCommandDecoder: %v", err)
			}
			_, err = decoder.DecodeAndMerge(context.Background(), volume, []string{"a.BUFR"})
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := services.ErrorKind(err); kind != "DECODE_ERROR" {
				t.Fatalf("kind = %s", kind)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestNewCommandRequiresBinary(t *testing.T) {
	if _, err := external.NewCommandDecoder(nil, t.TempDir()); services.ErrorKind(err) != "CONFIGURATION_ERROR" {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := external.NewCommandRenderer([]string{" "}); services.ErrorKind(err) != "CONFIGURATION_ERROR" {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCommandRendererArguments(t *testing.T) {
	dir := t.TempDir()
	script := testsupport.WriteScript(t, filepath.Join(dir, "render"), `out="$1"; shift
printf '%s\n' "$@" > "$out/args.txt"
`)
	renderer, err := external.NewCommandRenderer([]string{script, "{output_dir}", "--input", "{artifact}", "--id", "{volume_id}", "--type", "{product_type}"})
	if err != nil {
		t.Fatalf("NewCommandRenderer: %v", err)
	}

	outDir := filepath.Join(dir, "products", "image")
	req := product.Request{
		Volume:        volume,
		ArtifactPath:  "/data/merged.nc",
		ProductType:   "image",
		OutputDir:     outDir,
		IncludeColmax: true,
		Fields: []product.Field{
			{Name: "REFL", Style: config.FieldStyle{VMin: -20, VMax: 70, Colormap: "grc_th"}},
			{Name: "ZDR", Style: config.FieldStyle{VMin: -2, VMax: 7.5, Colormap: "grc_zdr"}},
		},
	}
	if err := renderer.Render(context.Background(), req); err != nil {
		t.Fatalf("Render: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "args.txt"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"--input", "/data/merged.nc",
		"--id", volume.VolumeID,
		"--type", "image",
		"--field", "REFL=-20,70,grc_th",
		"--field", "ZDR=-2,7.5,grc_zdr",
		"--colmax",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("args mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestCommandRendererFailureIsRenderError(t *testing.T) {
	dir := t.TempDir()
	script := testsupport.WriteScript(t, filepath.Join(dir, "render"), "echo 'colormap grc_th unknown' >&2\nexit 1\n")
	renderer, err := external.NewCommandRenderer([]string{script})
	if err != nil {
		t.Fatalf("NewCommandRenderer: %v", err)
	}
	err = renderer.Render(context.Background(), product.Request{Volume: volume, OutputDir: filepath.Join(dir, "out")})
	if services.ErrorKind(err) != "RENDER_ERROR" {
		t.Fatalf("expected render error, got %v", err)
	}
	if !strings.Contains(err.Error(), "colormap grc_th unknown") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
}
