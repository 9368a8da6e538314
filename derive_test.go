package ledgerd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type deriveTestAccount struct {
	Balance int64
}

func TestDeriveNameUsesUnderlyingTypeName(t *testing.T) {
	require.Equal(t, "deriveTestAccount", DeriveName[*deriveTestAccount]())
}

func TestDeriveRevisionIgnoresRegistrationOrder(t *testing.T) {
	a := DeriveRevision([]string{"Opened", "Deposited", "Withdrawn"})
	b := DeriveRevision([]string{"Withdrawn", "Opened", "Deposited"})
	require.Equal(t, a, b)
}

func TestDeriveRevisionChangesWithHandlerSet(t *testing.T) {
	base := DeriveRevision([]string{"Opened", "Deposited"})
	added := DeriveRevision([]string{"Opened", "Deposited", "Closed"})
	require.NotEqual(t, base, added)
}

func TestDeriveFoldDispatchesByEventName(t *testing.T) {
	table := map[string]func(a *deriveTestAccount, data []byte) error{
		"Deposited": func(a *deriveTestAccount, data []byte) error {
			a.Balance += int64(len(data))
			return nil
		},
	}
	fold := DeriveFold(table)

	acc := &deriveTestAccount{}
	require.NoError(t, fold(acc, Event{Name: "Deposited", Data: []byte("abc")}))
	require.Equal(t, int64(3), acc.Balance)

	// Unknown event names are ignored, not an error.
	require.NoError(t, fold(acc, Event{Name: "SomethingUnregistered", Data: []byte("ignored")}))
	require.Equal(t, int64(3), acc.Balance)
}
