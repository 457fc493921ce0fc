// Package application contém os casos de uso (regras de aplicação) do circuit
// breaker.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Manager.CanPass(ctx, "payment-api") consulta o estado compartilhado;
// Manager.RecordFailure abre o circuito quando o threshold é atingido.
package application
