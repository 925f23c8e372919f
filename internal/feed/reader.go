// Package feed parses update feeds into ordered task lists and verifies
// signed feeds.
//
// A feed is an XML document:
//
//	<Feed signature="...">
//	  <Title>My application</Title>
//	  <Link>https://example.com/</Link>
//	  <BaseUrl>https://example.com/updates/</BaseUrl>
//	  <Tasks>
//	    <FileUpdateTask localPath="app.exe" updateTo="v2/app.exe" sha256-checksum="...">
//	      <Description>main binary</Description>
//	      <Conditions>
//	        <FileVersionCondition what="below" version="2.0.0" />
//	        <BooleanCondition type="or-not">...</BooleanCondition>
//	      </Conditions>
//	    </FileUpdateTask>
//	  </Tasks>
//	</Feed>
package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alexisbeaulieu97/feedupdate/internal/condition"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

const (
	// SignatureAttr is the root attribute holding the feed signature.
	SignatureAttr = "signature"
	// VersionAttr is the root attribute marking the feed format version.
	VersionAttr = "version"
	// GroupElement nests a condition group inside another.
	GroupElement = "BooleanCondition"

	feedPath = "feed"
)

// Reader turns feed text into an ordered list of tasks.
type Reader interface {
	Read(text string) ([]task.Task, error)
}

// Document is a parsed feed.
type Document struct {
	Title     string
	Link      string
	BaseURL   string
	Version   string
	Signature string
	Tasks     []task.Task

	// Inner is the raw content between the root start and end tags, the
	// bytes a signature covers.
	Inner []byte

	rootStart, innerStart int64
}

// XMLReader parses feeds without checking signatures.
type XMLReader struct {
	Tasks      *task.Registry
	Conditions *condition.Registry
}

// NewReader returns a reader using the built-in task and condition kinds.
func NewReader() *XMLReader {
	return &XMLReader{
		Tasks:      task.DefaultRegistry(),
		Conditions: condition.DefaultRegistry(),
	}
}

// Read returns the feed's tasks in document order.
func (r *XMLReader) Read(text string) ([]task.Task, error) {
	doc, err := r.Parse(text)
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
	Text    string     `xml:",chardata"`
}

func (n node) attrs() map[string]string {
	out := make(map[string]string, len(n.Attrs))
	for _, a := range n.Attrs {
		out[a.Name.Local] = a.Value
	}
	return out
}

// Parse reads the full document, including metadata and the signed inner
// content.
func (r *XMLReader) Parse(text string) (*Document, error) {
	raw := []byte(text)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	doc := &Document{}

	root, err := r.findRoot(dec, doc)
	if err != nil {
		return nil, wrapSyntax(err)
	}
	doc.innerStart = dec.InputOffset()
	for _, a := range root.Attr {
		switch a.Name.Local {
		case SignatureAttr:
			doc.Signature = strings.TrimSpace(a.Value)
		case VersionAttr:
			doc.Version = a.Value
		}
	}

	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, wrapSyntax(err)
		}

		switch el := tok.(type) {
		case xml.EndElement:
			doc.Inner = raw[doc.innerStart:offset]
			return doc, nil
		case xml.StartElement:
			var n node
			if err := dec.DecodeElement(&n, &el); err != nil {
				return nil, wrapSyntax(err)
			}
			if err := r.apply(doc, n); err != nil {
				return nil, err
			}
		}
	}
}

func (r *XMLReader) findRoot(dec *xml.Decoder, doc *Document) (xml.StartElement, error) {
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, errors.New("feed has no root element")
			}
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			doc.rootStart = offset
			return start, nil
		}
	}
}

func (r *XMLReader) apply(doc *Document, n node) error {
	switch n.XMLName.Local {
	case "Title":
		doc.Title = strings.TrimSpace(n.Text)
	case "Link":
		doc.Link = strings.TrimSpace(n.Text)
	case "BaseUrl":
		doc.BaseURL = strings.TrimSpace(n.Text)
	case "Tasks":
		for _, child := range n.Nodes {
			t, err := r.buildTask(child)
			if err != nil {
				return feederrors.NewParseError(feedPath, 0, err)
			}
			doc.Tasks = append(doc.Tasks, t)
		}
	}
	return nil
}

func (r *XMLReader) buildTask(n node) (task.Task, error) {
	t, err := r.Tasks.Build(n.XMLName.Local, n.attrs())
	if err != nil {
		return nil, err
	}
	for _, child := range n.Nodes {
		switch child.XMLName.Local {
		case "Description":
			t.SetDescription(child.Text)
		case "Conditions":
			cond, err := r.buildGroup(child)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", t.ID(), err)
			}
			t.SetConditions(cond)
		}
	}
	return t, nil
}

func (r *XMLReader) buildGroup(n node) (condition.Condition, error) {
	var group condition.Condition
	for _, child := range n.Nodes {
		attrs := child.attrs()
		join, negate, err := condition.ParseType(attrs["type"])
		if err != nil {
			return condition.Condition{}, err
		}

		var cond condition.Condition
		if child.XMLName.Local == GroupElement {
			cond, err = r.buildGroup(child)
		} else {
			var leaf condition.Leaf
			leaf, err = r.Conditions.Build(child.XMLName.Local, attrs)
			cond = condition.NewLeaf(leaf)
		}
		if err != nil {
			return condition.Condition{}, err
		}
		group = group.Add(condition.Item{Condition: cond, Join: join, Negate: negate})
	}
	return group, nil
}

func wrapSyntax(err error) error {
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) {
		return feederrors.NewParseError(feedPath, syntax.Line, err)
	}
	return feederrors.NewParseError(feedPath, 0, err)
}
