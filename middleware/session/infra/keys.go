package infra

import "time"

// Uma função por entidade; todo acesso ao Redis passa por aqui.

func userKey(id string) string { return "user:" + id }

func usernameKey(username string) string { return "username:" + username }

func emailKey(email string) string { return "email:" + email }

func blacklistKey(token string) string { return "blacklist:" + token }

func statsKey(userID string) string { return "user_stats:" + userID }

// dailyKey usa a data UTC.
func dailyKey(userID string, at time.Time) string {
	return "user_daily:" + userID + ":" + at.UTC().Format("2006-01-02")
}

func endpointsKey(userID string) string { return "user_endpoints:" + userID }
