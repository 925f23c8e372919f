package feed

import (
	"bytes"
	"crypto"
	_ "crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/alexisbeaulieu97/feedupdate/internal/logger"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

// SignatureHash is the only digest accepted in feed signatures.
const SignatureHash = crypto.SHA512

// SignedReader verifies the feed signature before returning any task.
//
// With no public keys configured it behaves like XMLReader and applies no
// checksum policy. With keys configured, a feed whose signature is missing or
// does not verify against any key, or whose tasks lack a required checksum,
// yields no tasks and no error.
type SignedReader struct {
	reader *XMLReader
	keys   []openpgp.EntityList
	log    *logger.Logger
}

// SignedOption configures a SignedReader.
type SignedOption func(*SignedReader)

// WithLogger sets the logger used for rejection diagnostics.
func WithLogger(l *logger.Logger) SignedOption {
	return func(s *SignedReader) { s.log = l }
}

// WithReader replaces the underlying parser.
func WithReader(r *XMLReader) SignedOption {
	return func(s *SignedReader) { s.reader = r }
}

// NewSignedReader builds a reader trusting the given armored public keys, in
// order. An empty entry is kept and makes verification fail when reached. A
// key that cannot be read or that carries private material is an error.
func NewSignedReader(armoredKeys []string, opts ...SignedOption) (*SignedReader, error) {
	s := &SignedReader{reader: NewReader()}
	for i, armored := range armoredKeys {
		if strings.TrimSpace(armored) == "" {
			s.keys = append(s.keys, nil)
			continue
		}
		ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
		if err != nil {
			return nil, feederrors.NewVerificationError(fmt.Sprintf("#%d", i), "could not read public key", err)
		}
		if len(ring) == 0 {
			return nil, feederrors.NewVerificationError(fmt.Sprintf("#%d", i), "public key is empty", nil)
		}
		for _, entity := range ring {
			if entity.PrivateKey != nil {
				return nil, feederrors.NewVerificationError(fmt.Sprintf("#%d", i),
					"key contains private material; publish only the public key", nil)
			}
		}
		s.keys = append(s.keys, ring)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Read returns the verified tasks, or nil when the feed is rejected.
func (s *SignedReader) Read(text string) ([]task.Task, error) {
	doc, err := s.reader.Parse(text)
	if err != nil {
		return nil, err
	}
	if len(s.keys) == 0 {
		return doc.Tasks, nil
	}

	if !s.verify(doc) {
		s.log.Debug("feed signature rejected")
		return nil, nil
	}
	for _, t := range doc.Tasks {
		if !task.HasRequiredChecksum(t) {
			s.log.WithFields(map[string]any{"task": t.ID()}).Debug("feed rejected: task without checksum")
			return nil, nil
		}
	}
	return doc.Tasks, nil
}

func (s *SignedReader) verify(doc *Document) bool {
	if len(bytes.TrimSpace(doc.Inner)) == 0 || doc.Signature == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(doc.Signature)
	if err != nil {
		return false
	}

	for _, ring := range s.keys {
		if ring == nil {
			return false
		}
		_, err := openpgp.CheckDetachedSignatureAndHash(
			ring,
			bytes.NewReader(doc.Inner),
			bytes.NewReader(sig),
			[]crypto.Hash{SignatureHash},
			nil,
		)
		if err == nil {
			return true
		}
	}
	return false
}
