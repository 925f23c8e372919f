package feed

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

var signatureAttrPattern = regexp.MustCompile(`\s+` + SignatureAttr + `\s*=\s*("[^"]*"|'[^']*')`)

// Sign signs the inner content of the feed's root element with signer and
// returns the feed with the signature attribute set. Any previous signature
// is replaced.
func Sign(text string, signer *openpgp.Entity) (string, error) {
	if signer == nil || signer.PrivateKey == nil {
		return "", errors.New("signing key has no private key")
	}
	doc, err := NewReader().Parse(text)
	if err != nil {
		return "", err
	}

	var sig bytes.Buffer
	cfg := &packet.Config{DefaultHash: SignatureHash}
	if err := openpgp.DetachSign(&sig, signer, bytes.NewReader(doc.Inner), cfg); err != nil {
		return "", fmt.Errorf("sign feed: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(sig.Bytes())

	startTag := text[doc.rootStart:doc.innerStart]
	startTag = signatureAttrPattern.ReplaceAllString(startTag, "")
	closeAt := len(startTag) - 1
	if len(startTag) >= 2 && startTag[closeAt-1] == '/' {
		closeAt--
	}
	startTag = startTag[:closeAt] + fmt.Sprintf(` %s="%s"`, SignatureAttr, encoded) + startTag[closeAt:]

	return text[:doc.rootStart] + startTag + text[doc.innerStart:], nil
}

// GenerateKey creates a signing key pair and returns it armored.
func GenerateKey(name, email string) (publicKey, privateKey string, err error) {
	entity, err := openpgp.NewEntity(name, "feed signing", email, &packet.Config{
		Algorithm:   packet.PubKeyAlgoEdDSA,
		DefaultHash: SignatureHash,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}

	var pub bytes.Buffer
	if err := writeArmored(&pub, openpgp.PublicKeyType, entity.Serialize); err != nil {
		return "", "", err
	}
	var priv bytes.Buffer
	if err := writeArmored(&priv, openpgp.PrivateKeyType, func(w io.Writer) error {
		return entity.SerializePrivate(w, nil)
	}); err != nil {
		return "", "", err
	}
	return pub.String(), priv.String(), nil
}

func writeArmored(w io.Writer, blockType string, serialize func(io.Writer) error) error {
	enc, err := armor.Encode(w, blockType, nil)
	if err != nil {
		return fmt.Errorf("armor %s: %w", blockType, err)
	}
	if err := serialize(enc); err != nil {
		return fmt.Errorf("serialize %s: %w", blockType, err)
	}
	return enc.Close()
}

// ReadSigningKey reads the first armored private key from r.
func ReadSigningKey(r io.Reader) (*openpgp.Entity, error) {
	ring, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	for _, entity := range ring {
		if entity.PrivateKey != nil {
			return entity, nil
		}
	}
	return nil, errors.New("no private key found")
}
