package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry 解析 JWT 形态 token 的 exp claim（不校验签名）。
// 非 JWT（如 dapi 开头的 PAT）或无 exp 时返回 false。
func TokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// checkTokenExpiry 对能解析出 exp 的 token 做过期预检，
// 在发起网络请求之前就报出凭据失效。
func checkTokenExpiry(token string) error {
	exp, ok := TokenExpiry(token)
	if !ok {
		return nil
	}
	if time.Now().After(exp) {
		return fmt.Errorf("access token expired at %s", exp.Format(time.RFC3339))
	}
	return nil
}
