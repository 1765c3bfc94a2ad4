// Package httpclient provides basic http functions
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var client = &http.Client{
	Timeout: 5 * time.Minute,
}

// DownloadedFile contains information about a file that has been downloaded to
// the local file system
type DownloadedFile struct {
	LocalFilePath string
	ETag          string
	Size          int64
	DownloadedAt  time.Time
}

// DownloadRemoteFile retrieves a file from a url to a local file destination.
// On success returns information about the file in DownloadedFile
func DownloadRemoteFile(destinationFileName string, url string) (*DownloadedFile, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s returned status %d", url, resp.StatusCode)
	}

	out, err := os.Create(destinationFileName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = out.Close()
	}()
	bytesWritten, err := io.Copy(out, resp.Body)
	if err != nil {
		return nil, err
	}

	return &DownloadedFile{
		LocalFilePath: destinationFileName,
		ETag:          resp.Header.Get("ETag"),
		Size:          bytesWritten,
		DownloadedAt:  time.Now(),
	}, nil
}
