package capture

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root4loot/pagesnap/internal/browsertest"
	"github.com/root4loot/pagesnap/pkg/page"
)

const origin = "https://app.example.com"

const articleHTML = `<!DOCTYPE html>
<html><head><title>Page</title><style>body { color: red; }</style></head>
<body>
  <div id="main">
    <h1>Lesson   04821</h1>
    <p>First <b>bold</b> line</p>
    <img src="a.png" alt="x &amp; y">
    <script>var x = 1 < 2;</script>
  </div>
  <footer>Footer text</footer>
</body></html>`

func init() {
	page.Jitter = func() time.Duration { return 0 }
}

func newSession() *browsertest.Session {
	return browsertest.New(origin+"/home", map[string]string{
		origin + "/home":        articleHTML,
		origin + "/pages/04821": articleHTML,
		origin + "/pages/abc":   articleHTML,
	})
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"/pages/04821", "04821", false},
		{"/courses/12/lessons/345", "345", false},
		{"/pages/1234567", "123456", false},
		{"/item?id=990", "990", false},
		{"http://localhost:8080/pages/04821", "04821", false},
		{"http://localhost:8080/pages/abc", "", true},
		{"/pages/abc", "", true},
		{"/pages/12", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := FilenameFromURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelativeURL(t *testing.T) {
	assert.Equal(t, "/pages/04821?x=1", relativeURL("http://localhost:8080/pages/04821?x=1"))
	assert.Equal(t, "/pages/04821", relativeURL("/pages/04821"))
}

func TestPrettifyAndText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(articleHTML))
	require.NoError(t, err)
	main := doc.Find("#main")

	want := `<div id="main">
 <h1>
  Lesson   04821
 </h1>
 <p>
  First
  <b>
   bold
  </b>
  line
 </p>
 <img src="a.png" alt="x &amp; y">
 <script>
  var x = 1 < 2;
 </script>
</div>
`
	assert.Equal(t, want, Prettify(main))
	assert.Equal(t, "Lesson   04821\nFirst bold line", Text(main))
	assert.Contains(t, Text(doc.Find("body")), "Footer text")
	assert.NotContains(t, Text(doc.Find("html")), "color: red")
	assert.Equal(t, 1, doc.Find("#main script").Length(), "text extraction must not modify the document")
}

func TestCaptureWritesArtifactSet(t *testing.T) {
	dir := t.TempDir()
	s := newSession()

	result, err := Capture(context.Background(), s, Request{URL: "/pages/04821", Directory: dir, Selector: "#main"})
	require.NoError(t, err)

	assert.Equal(t, []string{origin + "/pages/04821"}, s.Navigations)
	assert.Equal(t, "04821", result.Base)
	assert.Equal(t, "#main", result.Selector)
	assert.False(t, result.FellBack)
	assert.Equal(t, [2]int{1280, 2400}, s.Viewport)
	assert.Equal(t, []string{"#main"}, s.Screenshots)

	assert.Equal(t, filepath.Join(dir, "04821.png"), result.ImagePath)
	assert.Equal(t, filepath.Join(dir, "04821.txt"), result.TextPath)
	assert.Equal(t, filepath.Join(dir, "04821.html.txt"), result.MarkupPath)

	text, err := os.ReadFile(result.TextPath)
	require.NoError(t, err)
	assert.Equal(t, "Lesson   04821\nFirst bold line", string(text))

	markup, err := os.ReadFile(result.MarkupPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(markup), `<div id="main">`))
	assert.NotContains(t, string(markup), "Footer")

	image, err := os.ReadFile(result.ImagePath)
	require.NoError(t, err)
	assert.Equal(t, []byte(result.Image), image)
}

func TestCaptureFallsBackToBody(t *testing.T) {
	dir := t.TempDir()
	s := newSession()

	result, err := Capture(context.Background(), s, Request{Filename: "fallback", Directory: dir, Selector: "#does-not-exist"})
	require.NoError(t, err)

	assert.True(t, result.FellBack)
	assert.Equal(t, FallbackSelector, result.Selector)
	assert.Equal(t, []string{"body"}, s.Screenshots)
	assert.Contains(t, result.Text, "Footer text")
	assert.True(t, strings.HasPrefix(result.Markup, "<body>"))
	assert.Empty(t, s.Navigations, "no URL means no navigation")
}

func TestCaptureDistinctFilenames(t *testing.T) {
	dir := t.TempDir()
	s := newSession()

	names := []string{"first", "second", "third"}
	for i, name := range names {
		s.Current = origin + "/home?run=" + name
		s.Pages[s.Current] = strings.Replace(articleHTML, "Footer text", "Footer "+name, 1)

		result, err := Capture(context.Background(), s, Request{Filename: name, Directory: dir})
		require.NoError(t, err, "capture %d", i)
		assert.Equal(t, name, result.Base)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 9)

	for _, name := range names {
		for _, ext := range []string{ImageExt, TextExt, MarkupExt} {
			data, err := os.ReadFile(filepath.Join(dir, name+ext))
			require.NoError(t, err)
			if ext == ImageExt {
				continue
			}
			assert.Contains(t, string(data), "Footer "+name)
			for _, other := range names {
				if other != name {
					assert.NotContains(t, string(data), "Footer "+other)
				}
			}
		}
	}
}

func TestCaptureDerivesFilenameFromCurrentPage(t *testing.T) {
	dir := t.TempDir()
	s := newSession()
	s.Current = origin + "/pages/04821"

	result, err := Capture(context.Background(), s, Request{Directory: dir})
	require.NoError(t, err)
	assert.Equal(t, "04821", result.Base)
}

func TestCaptureErrors(t *testing.T) {
	s := newSession()

	_, err := Capture(context.Background(), s, Request{URL: "/pages/04821"})
	assert.ErrorIs(t, err, ErrNoDirectory)
	assert.Empty(t, s.Navigations)

	dir := t.TempDir()
	_, err = Capture(context.Background(), s, Request{URL: "/pages/abc", Directory: dir})
	assert.ErrorIs(t, err, ErrNoFilename)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteToFolderRemovesPartialSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "04821"+TextExt), 0o755))

	result := &Result{Base: "04821", Image: Image("png"), Text: "text", Markup: "<body>\n</body>\n"}
	err := result.WriteToFolder(dir)
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(dir, "04821"+ImageExt))
	assert.NoFileExists(t, filepath.Join(dir, "04821"+MarkupExt))
	assert.Empty(t, result.ImagePath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the blocking directory is left")
}

func TestCaptureImprint(t *testing.T) {
	dir := t.TempDir()
	s := newSession()

	result, err := Capture(context.Background(), s, Request{Filename: "imprinted", Directory: dir, Imprint: true})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(result.Image))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48+imprintPadding*2+imprintBorder, img.Bounds().Dy())
}

func TestImprintRejectsInvalidImage(t *testing.T) {
	_, err := Image("not a png").Imprint("caption")
	assert.ErrorContains(t, err, "failed to decode image")
}

func TestIsSimilarToAny(t *testing.T) {
	a, err := browsertest.Image("a")
	require.NoError(t, err)
	b, err := browsertest.Image("b")
	require.NoError(t, err)

	first := Result{Base: "first", Image: a}
	same := Result{Base: "same", Image: a}
	other := Result{Base: "other", Image: b}

	similar, err := same.IsSimilarToAny([]Result{first}, 96)
	require.NoError(t, err)
	assert.True(t, similar)

	similar, err = other.IsSimilarToAny([]Result{first}, 96)
	require.NoError(t, err)
	assert.False(t, similar)

	similar, err = other.IsSimilarToAny(nil, 96)
	require.NoError(t, err)
	assert.False(t, similar)

	_, err = same.IsSimilarToAny(nil, 0)
	assert.Error(t, err)
}
