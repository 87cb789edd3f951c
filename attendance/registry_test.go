package attendance

import (
	"errors"
	"testing"

	"github.com/keepsake-xyz/go-keepsake/identity"
	"github.com/keepsake-xyz/go-keepsake/journal"
)

var (
	admin   = identity.Address{0x01}
	minter  = identity.Address{0x02}
	holder  = identity.Address{0x03}
	mallory = identity.Address{0x04}
)

// newAllowListRegistry returns a registry in allow-list mode with one
// approved minter.
func newAllowListRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(admin, ModeAllowList, journal.New())
	if err := r.AddMinter(admin, minter); err != nil {
		t.Fatalf("add minter: %v", err)
	}
	return r
}

// newSignatureRegistry returns a registry in signature mode wired to a
// fresh issuer key, plus the issuer for signing permits.
func newSignatureRegistry(t *testing.T) (*Registry, *identity.Issuer) {
	t.Helper()
	issuer, err := identity.NewIssuer()
	if err != nil {
		t.Fatalf("generate issuer: %v", err)
	}
	r := New(admin, ModeSignature, journal.New())
	if err := r.SetIssuer(admin, issuer.PublicKeyBytes()); err != nil {
		t.Fatalf("set issuer: %v", err)
	}
	return r, issuer
}

func signPermit(t *testing.T, issuer *identity.Issuer, recipient identity.Address, eventRef, uri string) []byte {
	t.Helper()
	proof, err := issuer.Sign(identity.IssuePermit{Recipient: recipient, EventRef: eventRef, MetadataURI: uri})
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	return proof
}

func TestIssueAllowList(t *testing.T) {
	t.Run("approved minter issues", func(t *testing.T) {
		r := newAllowListRegistry(t)
		id, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != 1 {
			t.Errorf("expected first token id 1, got %d", id)
		}
		owner, err := r.OwnerOf(id)
		if err != nil {
			t.Fatalf("owner of: %v", err)
		}
		if owner != holder {
			t.Errorf("owner = %s, want %s", owner.Hex(), holder.Hex())
		}
		if r.TotalIssued() != 1 {
			t.Errorf("total issued = %d, want 1", r.TotalIssued())
		}
	})

	t.Run("unlisted caller rejected", func(t *testing.T) {
		r := newAllowListRegistry(t)
		_, err := r.Issue(mallory, holder, "evt:1", "ipfs://m1", nil)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		// No token created, counter unchanged.
		if r.TotalIssued() != 0 {
			t.Errorf("total issued = %d, want 0", r.TotalIssued())
		}
		if _, ok := r.LiveTokenFor(holder, "evt:1"); ok {
			t.Error("token exists after rejected issuance")
		}
	})

	t.Run("removed minter rejected", func(t *testing.T) {
		r := newAllowListRegistry(t)
		if err := r.RemoveMinter(admin, minter); err != nil {
			t.Fatalf("remove minter: %v", err)
		}
		if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("duplicate guard holds in allow-list mode", func(t *testing.T) {
		r := newAllowListRegistry(t)
		if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil); err != nil {
			t.Fatalf("first issue: %v", err)
		}
		_, err := r.Issue(minter, holder, "evt:1", "ipfs://m2", nil)
		if !errors.Is(err, ErrDuplicateIssuance) {
			t.Errorf("expected ErrDuplicateIssuance, got %v", err)
		}
	})

	t.Run("same holder different events", func(t *testing.T) {
		r := newAllowListRegistry(t)
		if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil); err != nil {
			t.Fatalf("first issue: %v", err)
		}
		if _, err := r.Issue(minter, holder, "evt:2", "ipfs://m2", nil); err != nil {
			t.Fatalf("second event issue: %v", err)
		}
	})
}

func TestIssueValidation(t *testing.T) {
	r := newAllowListRegistry(t)

	if _, err := r.Issue(minter, identity.ZeroAddress, "evt:1", "ipfs://m", nil); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("zero recipient: expected ErrInvalidRecipient, got %v", err)
	}
	if _, err := r.Issue(minter, holder, "evt:1", "", nil); !errors.Is(err, ErrEmptyMetadataURI) {
		t.Errorf("empty uri: expected ErrEmptyMetadataURI, got %v", err)
	}
	if _, err := r.Issue(minter, holder, "", "ipfs://m", nil); !errors.Is(err, ErrInvalidEventRef) {
		t.Errorf("empty event: expected ErrInvalidEventRef, got %v", err)
	}
}

func TestIssueSignatureMode(t *testing.T) {
	t.Run("valid permit issues", func(t *testing.T) {
		r, issuer := newSignatureRegistry(t)
		proof := signPermit(t, issuer, holder, "evt:1", "ipfs://m1")

		// Any caller may submit a valid permit.
		id, err := r.Issue(mallory, holder, "evt:1", "ipfs://m1", proof)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		owner, err := r.OwnerOf(id)
		if err != nil {
			t.Fatalf("owner of: %v", err)
		}
		if owner != holder {
			t.Errorf("owner = %s, want %s", owner.Hex(), holder.Hex())
		}
	})

	t.Run("no issuer configured", func(t *testing.T) {
		r := New(admin, ModeSignature, journal.New())
		_, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", []byte{0x01})
		if !errors.Is(err, ErrIssuerNotConfigured) {
			t.Errorf("expected ErrIssuerNotConfigured, got %v", err)
		}
	})

	t.Run("missing proof", func(t *testing.T) {
		r, _ := newSignatureRegistry(t)
		if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})

	t.Run("proof for different permit", func(t *testing.T) {
		r, issuer := newSignatureRegistry(t)
		proof := signPermit(t, issuer, holder, "evt:1", "ipfs://m1")
		if _, err := r.Issue(minter, holder, "evt:2", "ipfs://m1", proof); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})

	t.Run("proof from wrong key", func(t *testing.T) {
		r, _ := newSignatureRegistry(t)
		stranger, err := identity.NewIssuer()
		if err != nil {
			t.Fatalf("generate stranger: %v", err)
		}
		forged := signPermit(t, stranger, holder, "evt:1", "ipfs://m1")
		if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", forged); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})

	t.Run("duplicate with fresh signature", func(t *testing.T) {
		r, issuer := newSignatureRegistry(t)
		first := signPermit(t, issuer, holder, "evt:1", "ipfs://m1")
		if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", first); err != nil {
			t.Fatalf("first issue: %v", err)
		}

		// A fresh valid permit with different metadata still trips the
		// duplicate guard for the same (holder, event).
		second := signPermit(t, issuer, holder, "evt:1", "ipfs://m2")
		_, err := r.Issue(minter, holder, "evt:1", "ipfs://m2", second)
		if !errors.Is(err, ErrDuplicateIssuance) {
			t.Errorf("expected ErrDuplicateIssuance, got %v", err)
		}
	})
}

func TestNonTransferability(t *testing.T) {
	r := newAllowListRegistry(t)
	id, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	calls := []struct {
		name string
		call func() error
	}{
		{"transfer by stranger", func() error { return r.Transfer(mallory, holder, mallory, id) }},
		{"transfer by owner", func() error { return r.Transfer(holder, holder, mallory, id) }},
		{"safe transfer by owner", func() error { return r.SafeTransfer(holder, holder, mallory, id) }},
		{"transfer of unknown token", func() error { return r.Transfer(holder, holder, mallory, 999) }},
		{"approve stranger", func() error { return r.Approve(holder, mallory, id) }},
		{"self approve", func() error { return r.Approve(holder, holder, id) }},
		{"approval for all", func() error { return r.SetApprovalForAll(holder, mallory, true) }},
		{"self approval for all", func() error { return r.SetApprovalForAll(holder, holder, true) }},
	}
	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrTransferNotAllowed) {
				t.Errorf("expected ErrTransferNotAllowed, got %v", err)
			}
		})
	}

	// Ownership is untouched by the rejected calls.
	owner, err := r.OwnerOf(id)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != holder {
		t.Errorf("owner = %s, want %s", owner.Hex(), holder.Hex())
	}
}

func TestVoid(t *testing.T) {
	voider := identity.Address{0x05}

	setup := func(t *testing.T) (*Registry, uint64) {
		r := newAllowListRegistry(t)
		if err := r.SetVoider(admin, voider); err != nil {
			t.Fatalf("set voider: %v", err)
		}
		id, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return r, id
	}

	t.Run("voider burns token", func(t *testing.T) {
		r, id := setup(t)
		if err := r.Void(voider, id); err != nil {
			t.Fatalf("void: %v", err)
		}
		if _, err := r.OwnerOf(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after void, got %v", err)
		}
		// The slot frees up: the holder can be issued again for the event.
		if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m2", nil); err != nil {
			t.Errorf("reissue after void: %v", err)
		}
	})

	t.Run("non-voider rejected", func(t *testing.T) {
		r, id := setup(t)
		if err := r.Void(mallory, id); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if err := r.Void(admin, id); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("owner is not implicitly a voider, got %v", err)
		}
	})

	t.Run("no voider configured", func(t *testing.T) {
		r := newAllowListRegistry(t)
		id, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if err := r.Void(identity.ZeroAddress, id); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized with no voider set, got %v", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		r, _ := setup(t)
		if err := r.Void(voider, 999); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("already voided token", func(t *testing.T) {
		r, id := setup(t)
		if err := r.Void(voider, id); err != nil {
			t.Fatalf("void: %v", err)
		}
		if err := r.Void(voider, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for dead token, got %v", err)
		}
	})
}

func TestOwnerOrDelegate(t *testing.T) {
	r := newAllowListRegistry(t)
	id, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if !r.OwnerOrDelegate(holder, id) {
		t.Error("owner should pass the ownership predicate")
	}
	if r.OwnerOrDelegate(mallory, id) {
		t.Error("stranger should fail the ownership predicate")
	}
	if r.OwnerOrDelegate(holder, 999) {
		t.Error("unknown token should answer false, not error")
	}
}

func TestAdminGating(t *testing.T) {
	r := New(admin, ModeAllowList, journal.New())

	if err := r.AddMinter(mallory, mallory); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("AddMinter by stranger: expected ErrUnauthorized, got %v", err)
	}
	if err := r.RemoveMinter(mallory, minter); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("RemoveMinter by stranger: expected ErrUnauthorized, got %v", err)
	}
	if err := r.SetVoider(mallory, mallory); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SetVoider by stranger: expected ErrUnauthorized, got %v", err)
	}
	if err := r.SetIssuer(mallory, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SetIssuer by stranger: expected ErrUnauthorized, got %v", err)
	}
}

func TestQueries(t *testing.T) {
	r := newAllowListRegistry(t)
	id, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	uri, err := r.TokenURI(id)
	if err != nil {
		t.Fatalf("token uri: %v", err)
	}
	if uri != "ipfs://m1" {
		t.Errorf("uri = %q, want %q", uri, "ipfs://m1")
	}

	tok, err := r.Token(id)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.EventRef != "evt:1" || tok.Owner != holder || tok.CreatedAt.IsZero() {
		t.Errorf("unexpected token record: %+v", tok)
	}

	live, ok := r.LiveTokenFor(holder, "evt:1")
	if !ok || live != id {
		t.Errorf("LiveTokenFor = (%d, %v), want (%d, true)", live, ok, id)
	}
	if _, ok := r.LiveTokenFor(holder, "evt:9"); ok {
		t.Error("LiveTokenFor should miss for an event never attended")
	}

	if _, err := r.TokenURI(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIssueEmitsJournal(t *testing.T) {
	jnl := journal.New()
	r := New(admin, ModeAllowList, jnl)
	if err := r.AddMinter(admin, minter); err != nil {
		t.Fatalf("add minter: %v", err)
	}

	if _, err := r.Issue(minter, holder, "evt:1", "ipfs://m1", nil); err != nil {
		t.Fatalf("issue: %v", err)
	}

	issued := jnl.ByKind(journal.KindTokenIssued)
	if len(issued) != 1 {
		t.Fatalf("expected 1 issuance event, got %d", len(issued))
	}
	if issued[0].Attrs["event"] != "evt:1" {
		t.Errorf("event attr = %v, want evt:1", issued[0].Attrs["event"])
	}
	if issued[0].Actor != minter.Hex() {
		t.Errorf("actor = %s, want %s", issued[0].Actor, minter.Hex())
	}
}
