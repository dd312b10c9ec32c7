package staticfileserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseListing(t *testing.T, body []byte) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	require.NoError(t, err)
	return doc
}

func TestReadEntries_SortedAndClassified(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "B.txt"), []byte("1"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a-dir"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a-dir"), filepath.Join(dir, "link-to-dir")))

	entries, err := NewDirectoryLister(nil).ReadEntries(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	// Byte-wise ordering puts upper case first.
	assert.Equal(t, []string{"B.txt", "a-dir", "b.txt", "link-to-dir"}, names)
	assert.True(t, entries[1].IsDirectory)
	assert.False(t, entries[2].IsDirectory)
	assert.Equal(t, int64(5), entries[2].Size)
	assert.True(t, entries[3].IsDirectory, "symlink to a directory is listed as a directory")
}

func TestRenderListing_Root(t *testing.T) {
	body := RenderListing("", []DirectoryEntry{
		{Name: "movies", IsDirectory: true},
		{Name: "my clip.mkv", Size: 2048},
	})
	doc := parseListing(t, body)

	assert.Equal(t, "Directory: /", doc.Find("h1").Text())
	assert.Equal(t, 0, doc.Find("a.parent").Length(), "root has no parent link")

	links := doc.Find("li a")
	require.Equal(t, 2, links.Length())

	href, _ := links.Eq(0).Attr("href")
	assert.Equal(t, "/movies/", href)
	assert.Equal(t, "movies/", links.Eq(0).Text())

	href, _ = links.Eq(1).Attr("href")
	assert.Equal(t, "/my%20clip.mkv", href)
	assert.Equal(t, "my clip.mkv", links.Eq(1).Text())
	assert.Equal(t, "2.0 kB", doc.Find("li .size").First().Text())
}

func TestRenderListing_Nested(t *testing.T) {
	body := RenderListing("shows/season 1", []DirectoryEntry{
		{Name: "e01.mkv", Size: 10},
		{Name: `<script>.txt`, Size: 1},
	})
	doc := parseListing(t, body)

	assert.Equal(t, "Directory: /shows/season 1", doc.Find("h1").Text())

	parents := doc.Find("a.parent")
	require.Equal(t, 1, parents.Length())
	href, _ := parents.Attr("href")
	assert.Equal(t, "/shows/", href)
	assert.Equal(t, "[Parent Directory]", parents.Text())

	href, _ = doc.Find("li a").Not(".parent").First().Attr("href")
	assert.Equal(t, "/shows/season%201/e01.mkv", href)

	assert.NotContains(t, string(body), "<script>")
	assert.Equal(t, "<script>.txt", doc.Find("li a").Not(".parent").Eq(1).Text())
}

func TestRenderListing_ParentOfTopLevelDirectory(t *testing.T) {
	doc := parseListing(t, RenderListing("movies", nil))
	href, _ := doc.Find("a.parent").Attr("href")
	assert.Equal(t, "/", href)
}

func TestList_ReadFailureIs500(t *testing.T) {
	dir := t.TempDir()
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	target := &ResolvedTarget{AbsolutePath: filepath.Join(dir, "vanished"), IsDirectory: true, RelativePath: "vanished", Info: fi}

	rec := httptest.NewRecorder()
	err = NewDirectoryLister(nil).List(rec, httptest.NewRequest(http.MethodGet, "/vanished/", nil), target)

	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), dir)
}
