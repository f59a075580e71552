package conversation

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Attach records a file shared by the user. Only metadata is kept: name,
// size, content type and, for PDFs, the page count. No reply is produced.
func (c *Controller) Attach(path string) (Message, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Message{}, fmt.Errorf("attaching file: %w", err)
	}
	if info.IsDir() {
		return Message{}, fmt.Errorf("attaching file: %s is a directory", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	att := &Attachment{
		Name:        info.Name(),
		Path:        path,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(ext),
	}
	if ext == ".pdf" {
		pages, err := pdfPages(path)
		if err != nil {
			c.logger.Warn("reading pdf page count", "path", path, "error", err)
		} else {
			att.Pages = pages
		}
	}

	return c.append(Message{
		Role:       RoleUser,
		Kind:       KindFile,
		Text:       "📎 Uploaded file: " + att.Name,
		Attachment: att,
	})
}

func pdfPages(path string) (n int, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}
