package accounts

import "context"

type contextKey string

const accountCtxKey contextKey = "account"

func SetAccountInContext(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountCtxKey, account)
}

func GetAccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountCtxKey).(*Account)
	return account
}
