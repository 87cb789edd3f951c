package identity

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/secp256k1/ecdsa"
)

// permitTag domain-separates permit signatures from anything else the
// issuer key might ever sign.
const permitTag = "keepsake/issue-permit/v1"

// IssuePermit is the message an issuer signs to authorize one issuance.
type IssuePermit struct {
	Recipient   Address
	EventRef    string
	MetadataURI string
}

// Encode returns the deterministic byte encoding that gets signed: the
// domain tag, the recipient, then each string field length-prefixed so no
// two distinct permits share an encoding.
func (p IssuePermit) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(permitTag)
	buf.Write(p.Recipient[:])
	writeField(&buf, p.EventRef)
	writeField(&buf, p.MetadataURI)
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

// Issuer holds the secp256k1 key pair whose signatures authorize issuance
// on a signature-gated registry.
type Issuer struct {
	priv *ecdsa.PrivateKey
}

// NewIssuer generates a fresh issuer key pair.
func NewIssuer() (*Issuer, error) {
	priv, err := ecdsa.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate issuer key: %w", err)
	}
	return &Issuer{priv: priv}, nil
}

// IssuerFromBytes restores an issuer from a serialized private key.
func IssuerFromBytes(b []byte) (*Issuer, error) {
	priv := new(ecdsa.PrivateKey)
	if _, err := priv.SetBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Issuer{priv: priv}, nil
}

// Bytes serializes the private key for storage.
func (i *Issuer) Bytes() []byte {
	return i.priv.Bytes()
}

// PublicKeyBytes serializes the verifying half of the key pair, which is
// what a registry is configured with.
func (i *Issuer) PublicKeyBytes() []byte {
	return i.priv.PublicKey.Bytes()
}

// Address returns the identity derived from the issuer's public key.
func (i *Issuer) Address() Address {
	return AddressFromKey(&i.priv.PublicKey)
}

// Sign produces the proof for one permit.
func (i *Issuer) Sign(p IssuePermit) ([]byte, error) {
	sig, err := i.priv.Sign(p.Encode(), sha256.New())
	if err != nil {
		return nil, fmt.Errorf("identity: sign permit: %w", err)
	}
	return sig, nil
}

// PermitVerifier checks permit proofs against one fixed issuer key.
type PermitVerifier struct {
	pub  *ecdsa.PublicKey
	addr Address
}

// NewPermitVerifier builds a verifier from a serialized issuer public key.
func NewPermitVerifier(pubBytes []byte) (*PermitVerifier, error) {
	pub := new(ecdsa.PublicKey)
	if _, err := pub.SetBytes(pubBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &PermitVerifier{pub: pub, addr: AddressFromKey(pub)}, nil
}

// Issuer returns the address whose signatures the verifier accepts.
func (v *PermitVerifier) Issuer() Address {
	return v.addr
}

// Verify reports whether proof is the issuer's signature over the permit.
// Malformed proofs verify as false rather than erroring; the caller only
// cares whether the permit is good.
func (v *PermitVerifier) Verify(p IssuePermit, proof []byte) bool {
	if len(proof) == 0 {
		return false
	}
	ok, err := v.pub.Verify(proof, p.Encode(), sha256.New())
	return err == nil && ok
}
