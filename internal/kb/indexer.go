package kb

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	xhtml "golang.org/x/net/html"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/docxparse"
	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/objstore"
	"github.com/swscloud/reviewd/internal/observability"
	"github.com/swscloud/reviewd/internal/pagetext"
	"github.com/swscloud/reviewd/internal/store"
	"github.com/swscloud/reviewd/internal/textnorm"
)

// Indexer turns uploaded knowledge-base sources into retrievable chunks.
type Indexer struct {
	st  *store.Store
	obj objstore.Store
}

func NewIndexer(st *store.Store, obj objstore.Store) *Indexer {
	return &Indexer{st: st, obj: obj}
}

// Index extracts, chunks, and stores one source. The source ends READY or
// FAILED; existing chunks are replaced.
func (ix *Indexer) Index(ctx context.Context, sourceID int64) error {
	src, err := ix.st.GetKBSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if err := ix.st.UpdateKBSourceStatus(ctx, sourceID, docmodel.KBProcessing, ""); err != nil {
		return err
	}

	if err := ix.index(ctx, src); err != nil {
		_ = ix.st.UpdateKBSourceStatus(ctx, sourceID, docmodel.KBFailed, errors.Truncate(err.Error(), 2000))
		return err
	}
	return ix.st.UpdateKBSourceStatus(ctx, sourceID, docmodel.KBReady, "")
}

func (ix *Indexer) index(ctx context.Context, src *docmodel.KBSource) error {
	data, err := ix.obj.Get(ctx, src.ObjectKey)
	if err != nil {
		return err
	}

	text, bounds, err := extractText(src.ObjectKey, data)
	if err != nil {
		return err
	}
	text = textnorm.Norm(text)
	if text == "" {
		return errors.New(errors.CategoryParse, errors.SeverityError, "source yields no text")
	}

	if err := ix.st.DeleteKBChunks(ctx, src.ID); err != nil {
		return err
	}
	chunks := Split(text, bounds)
	for _, c := range chunks {
		err := ix.st.InsertKBChunk(ctx, &docmodel.KBChunk{
			KBSourceID: src.ID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Meta:       c.Meta(),
			Hash:       c.Hash(),
		})
		if err != nil {
			return err
		}
	}
	observability.Info(ctx, "kb source indexed",
		slog.Int64("source_id", src.ID),
		slog.Int("chunks", len(chunks)))
	return nil
}

// extractText converts the raw object into plain text. PDF sources also
// return page boundaries for per-chunk page spans.
func extractText(key string, data []byte) (string, []pagetext.PageBoundary, error) {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf":
		layout, err := pagetext.ExtractLayout(data)
		if err != nil {
			return "", nil, err
		}
		text, bounds := layout.FullText()
		return text, bounds, nil
	case ".docx":
		elems, err := docxparse.ReadDocx(data)
		if err != nil {
			return "", nil, err
		}
		return docxText(elems), nil, nil
	case ".md", ".markdown":
		var html bytes.Buffer
		if err := goldmark.Convert(data, &html); err != nil {
			return "", nil, errors.Wrap(err, errors.CategoryParse, errors.SeverityError, "render markdown")
		}
		text, err := htmlText(html.Bytes())
		return text, nil, err
	case ".html", ".htm":
		text, err := htmlText(data)
		return text, nil, err
	default:
		return string(data), nil, nil
	}
}

func docxText(elems []docxparse.Element) string {
	var sb strings.Builder
	for _, e := range elems {
		switch e.Kind {
		case docxparse.ElemPara:
			sb.WriteString(e.Text)
			sb.WriteByte('\n')
		case docxparse.ElemTable:
			for _, row := range e.Rows {
				sb.WriteString(strings.Join(row, "\t"))
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

// htmlText walks the parse tree and collects text nodes, skipping script
// and style subtrees.
func htmlText(data []byte) (string, error) {
	doc, err := xhtml.Parse(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryParse, errors.SeverityError, "parse html")
	}
	var sb strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String(), nil
}
