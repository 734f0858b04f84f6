package utils

const DefaultBufferSize = 1024 * 256 // 256KB read buffer
const ToolUserAgent = "fetchr/1337"
const MaxRedirects = 10

// DownloadEntry is one line of a YAML URL list file.
type DownloadEntry struct {
	URL string `yaml:"link"`
}
