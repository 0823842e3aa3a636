// Package application contém os casos de uso do throttling e do limite de
// concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Ex.: Engine.Decide(ctx, key) retorna uma Decision (allow/deny + metadata).
package application
