// Package client is the forkledger Go SDK.
//
// It wraps the HTTP API of a ledgerd server: creating ledgers and clones,
// moving tokens, and reading balances and supply at any past block.
//
// # Connecting
//
// Writes need a caller token, issued by an operator holding the admin secret:
//
//	admin := client.MustNew("http://localhost:8080", client.WithAdminSecret(secret))
//	tok, err := admin.IssueToken(ctx, address.MustParse("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c := client.MustNew("http://localhost:8080", client.WithBearerToken(tok.Token))
//
// # Historical reads
//
// Every balance and supply read can target a past block:
//
//	bal, err := c.BalanceOfAt(ctx, ledgerID, holder, 1200)
//
// # Errors
//
// Non-2xx responses are returned as *APIError carrying the server's error
// code, so callers can branch on it:
//
//	if client.IsCode(err, "insufficient_balance") { ... }
package client
