package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/vhd-tools/pkg/elog"
	"github.com/vorteil/vhd-tools/pkg/storage"
	"github.com/vorteil/vhd-tools/pkg/storage/s3mem"
	"github.com/vorteil/vhd-tools/pkg/vhd/vhdtest"
	"github.com/vorteil/vhd-tools/pkg/vhdcompare"
	"github.com/vorteil/vhd-tools/pkg/vhdparser"
)

func workspace(t *testing.T) (string, storage.Handler, func()) {
	dir, err := ioutil.TempDir("", "vhd-cli")
	require.NoError(t, err)
	return "file://" + dir, storage.NewLocalHandler(dir), func() { os.RemoveAll(dir) }
}

func TestCopyThenCompare(t *testing.T) {

	ctx := context.Background()
	url, h, cleanup := workspace(t)
	defer cleanup()

	img := vhdtest.Image{Entries: 12, Allocated: vhdtest.Sparse, Locators: 2}
	require.NoError(t, vhdtest.Build(ctx, h, "src.vhd", img))

	require.NoError(t, runCopy(ctx, []string{url, "src.vhd", url, "file.vhd"}, false, 4))
	require.NoError(t, runCopy(ctx, []string{url, "src.vhd", url, "dir.vhd"}, true, 1))

	assert.NoError(t, runCompare(ctx, []string{url, "src.vhd", url, "file.vhd"}))
	assert.NoError(t, runCompare(ctx, []string{url, "file.vhd", url, "dir.vhd"}))

	_, err := h.ReadFile(ctx, "dir.vhd/blocks/0")
	assert.NoError(t, err)
}

func TestCompareReportsDifference(t *testing.T) {

	ctx := context.Background()
	url, h, cleanup := workspace(t)
	defer cleanup()

	require.NoError(t, vhdtest.Build(ctx, h, "a.vhd", vhdtest.Image{Entries: 4, Allocated: vhdtest.All}))
	require.NoError(t, vhdtest.Build(ctx, h, "b.vhd", vhdtest.Image{Entries: 4, Allocated: vhdtest.Sparse}))

	err := runCompare(ctx, []string{url, "a.vhd", url, "b.vhd"})
	var presence *vhdcompare.BlockPresenceError
	require.True(t, errors.As(err, &presence))
	assert.EqualValues(t, 1, presence.Index)

	err = runCompare(ctx, []string{url, "a.vhd", url, "missing.vhd"})
	assert.True(t, storage.IsNotExist(err))
}

func TestUsageOnMissingArguments(t *testing.T) {

	for _, c := range []*cobra.Command{compareCmd, copyCmd} {
		buf := new(bytes.Buffer)
		c.SetOut(buf)
		c.Run(c, []string{"file:///tmp", "disk.vhd"})
		assert.Contains(t, buf.String(), "SOURCE_URL SOURCE_PATH DEST_URL DEST_PATH")
		assert.Equal(t, 0, errorStatusCode)
	}
}

func TestExportThenParse(t *testing.T) {

	ctx := context.Background()
	url, h, cleanup := workspace(t)
	defer cleanup()

	client := s3mem.New()
	newS3Client = func(*storage.Config) (s3iface.S3API, error) {
		return client, nil
	}
	defer func() { newS3Client = storage.NewS3Client }()

	img := vhdtest.Image{Entries: 6, Allocated: vhdtest.Sparse, Locators: 1}
	require.NoError(t, vhdtest.Build(ctx, h, "src.vhd", img))

	require.NoError(t, runExport(ctx, []string{url, "src.vhd", "s3://bucket/exports/src"}, "zstd"))

	keys := client.Keys("bucket")
	assert.Len(t, keys, 8)
	assert.Contains(t, keys, "exports/src/0.footer.zstd")
	assert.Contains(t, keys, "exports/src/512.header.zstd")
	assert.Contains(t, keys, "exports/src/1536.bat.zstd")

	assert.NoError(t, runParse(ctx, nil, "s3://bucket/exports/src", ""))
	assert.NoError(t, runParse(ctx, []string{url, "src.vhd"}, "", "block"))
	assert.Error(t, runParse(ctx, []string{url, "src.vhd"}, "", "[block"))

	err := runExport(ctx, []string{url, "src.vhd", "s3://bucket/exports/src"}, "lz4")
	assert.Error(t, err)

	err = runExport(ctx, []string{url, "src.vhd", "gs://bucket/exports/src"}, "gz")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {

	dir, err := ioutil.TempDir("", "vhd-cli-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "vhd-cli.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
copy:
  concurrency: 3
s3:
  region: ap-southeast-2
  endpoint: http://localhost:9000
  forcePathStyle: true
export:
  codec: zstd
`), 0644))

	defer viper.Reset()
	initConfig(path, log)

	assert.Equal(t, 3, concurrency(copyCmd.Flags()))
	assert.Equal(t, "zstd", viper.GetString(configExportCodec))

	cfg := storageConfig()
	assert.Equal(t, "ap-southeast-2", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.True(t, cfg.S3ForcePathStyle)
}

func TestEventLoggerMatch(t *testing.T) {

	ctx := context.Background()

	var lines []string
	prev := log
	log = recordingView{lines: &lines}
	defer func() { log = prev }()

	h, err := eventLogger("parent*")
	require.NoError(t, err)

	for _, ev := range []*vhdparser.Event{
		{Type: vhdparser.EventFooter, Data: make([]byte, 512)},
		{Type: vhdparser.EventBlock, Offset: 4096},
		{Type: vhdparser.EventParentLocator, Offset: 2048},
		{Type: vhdparser.EventEnd},
	} {
		require.NoError(t, h(ctx, ev))
	}

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "parentLocator")
}

type recordingView struct {
	lines *[]string
}

func (v recordingView) Debugf(format string, x ...interface{}) {}
func (v recordingView) Errorf(format string, x ...interface{}) {}
func (v recordingView) Infof(format string, x ...interface{})  {}
func (v recordingView) Warnf(format string, x ...interface{})  {}
func (v recordingView) Printf(format string, x ...interface{}) {
	*v.lines = append(*v.lines, fmt.Sprintf(format, x...))
}

func TestJSONLogger(t *testing.T) {

	buf := new(bytes.Buffer)
	logrus.SetOutput(buf)
	flagJSON = true
	defer func() {
		flagJSON = false
		elog.IsJSON = false
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&elog.CLI{})
		logrus.SetLevel(logrus.TraceLevel)
	}()

	l := newLogger("copy")
	assert.True(t, elog.IsJSON)

	l.Printf("copied %d blocks", 3)
	l.Debugf("hidden")

	assert.Contains(t, buf.String(), `"command":"copy"`)
	assert.Contains(t, buf.String(), `"msg":"copied 3 blocks"`)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestPrintVersion(t *testing.T) {

	buf := new(bytes.Buffer)
	require.NoError(t, printVersion(buf, ""))
	assert.Contains(t, buf.String(), "vhd-cli "+release)

	buf.Reset()
	require.NoError(t, printVersion(buf, "json"))
	assert.Contains(t, buf.String(), `"name": "vhd-cli"`)

	assert.Error(t, printVersion(buf, "yaml"))
}
