// Package application implementa o ciclo de vida de credenciais: cadastro,
// login, verificação, revogação e renovação de bearer tokens, além dos
// contadores de atividade por usuário.
package application
