package ledgerd_test

import (
	"context"
	"database/sql"

	"github.com/fxamacker/cbor/v2"
	"github.com/riftwell/ledgerd"
	"github.com/riftwell/ledgerd/sqlite"
	_ "modernc.org/sqlite"
)

var testCtx = context.Background()

type accountOpened struct {
	Owner string
}

func (accountOpened) EventName() string { return "Opened" }

type accountDeposited struct {
	Amount int64
}

func (accountDeposited) EventName() string { return "Deposited" }

type accountWithdrawn struct {
	Amount int64
}

func (accountWithdrawn) EventName() string { return "Withdrawn" }

var testAccountHandlerNames = []string{"Opened", "Deposited", "Withdrawn"}

// testAccount is a minimal aggregate used across the engine's own test
// suite; it is the only aggregate type defined in this repository.
type testAccount struct {
	Owner   string
	Balance int64
}

func (a *testAccount) Name() string { return "TestAccount" }

func (a *testAccount) Revision() string { return ledgerd.DeriveRevision(testAccountHandlerNames) }

func (a *testAccount) Fold(e ledgerd.Event) error {
	return ledgerd.DeriveFold(map[string]func(a *testAccount, data []byte) error{
		"Opened": func(a *testAccount, data []byte) error {
			var p accountOpened
			if err := cbor.Unmarshal(data, &p); err != nil {
				return err
			}
			a.Owner = p.Owner
			return nil
		},
		"Deposited": func(a *testAccount, data []byte) error {
			var p accountDeposited
			if err := cbor.Unmarshal(data, &p); err != nil {
				return err
			}
			a.Balance += p.Amount
			return nil
		},
		"Withdrawn": func(a *testAccount, data []byte) error {
			var p accountWithdrawn
			if err := cbor.Unmarshal(data, &p); err != nil {
				return err
			}
			a.Balance -= p.Amount
			return nil
		},
	})(a, e)
}

func newTestAccount() *testAccount { return &testAccount{} }

func mustEncode(v any) []byte {
	b, err := cbor.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func openMemoryStore() *sqlite.Store {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		panic(err)
	}
	store, err := sqlite.New(testCtx, db)
	if err != nil {
		panic(err)
	}
	return store
}
