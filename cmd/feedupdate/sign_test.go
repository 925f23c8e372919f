package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/feedupdate/internal/feed"
)

const signableFeed = `<?xml version="1.0" encoding="utf-8"?>
<Feed>
  <Tasks>
    <FileUpdateTask localPath="app.bin" updateTo="app.bin" sha256-checksum="9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08" />
  </Tasks>
</Feed>`

func TestKeygenAndSign(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "release")

	out, err := executeCommand(t, "keygen", "--name", "Release", "--email", "release@example.com", "--out", prefix)
	require.NoError(t, err)
	require.Contains(t, out, prefix+".pub.asc")
	require.FileExists(t, prefix+".pub.asc")
	require.FileExists(t, prefix+".key.asc")

	_, err = executeCommand(t, "keygen", "--out", prefix)
	require.ErrorContains(t, err, "already exists")

	feedPath := filepath.Join(dir, "feed.xml")
	signedPath := filepath.Join(dir, "signed.xml")
	require.NoError(t, os.WriteFile(feedPath, []byte(signableFeed), 0o644))

	_, err = executeCommand(t, "sign", "--key", prefix+".key.asc", "--feed", feedPath, "--output", signedPath)
	require.NoError(t, err)

	signed, err := os.ReadFile(signedPath)
	require.NoError(t, err)
	require.Contains(t, string(signed), `signature="`)

	pub, err := os.ReadFile(prefix + ".pub.asc")
	require.NoError(t, err)
	reader, err := feed.NewSignedReader([]string{string(pub)})
	require.NoError(t, err)

	tasks, err := reader.Read(string(signed))
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	tasks, err = reader.Read(signableFeed)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestSignRequiresFlags(t *testing.T) {
	_, err := executeCommand(t, "sign")
	require.Error(t, err)
}
