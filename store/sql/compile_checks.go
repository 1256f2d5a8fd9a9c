package sqlstore

import "github.com/goliatone/go-grants/core"

var (
	_ core.GrantStore             = (*GrantStore)(nil)
	_ core.CreditLedger           = (*CreditStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
