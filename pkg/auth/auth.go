package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 权限常量
const (
	PermissionOrchestrate        = "orchestrate"
	PermissionReadNotifications  = "notifications:read"
	PermissionWriteNotifications = "notifications:write"
	PermissionReadExperience     = "experience:read"
)

// 角色常量：bot 为消息机器人，user 为聊天/语音客户端
const (
	RoleBot   = "bot"
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleBot: {
		PermissionOrchestrate,
	},
	RoleUser: {
		PermissionOrchestrate,
		PermissionReadNotifications,
		PermissionWriteNotifications,
		PermissionReadExperience,
	},
	RoleAdmin: {
		PermissionOrchestrate,
		PermissionReadNotifications,
		PermissionWriteNotifications,
		PermissionReadExperience,
	},
}

var ErrInvalidToken = errors.New("invalid token")

// Claims 调用方身份
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates an HS256 token for a client.
func GenerateToken(subject, role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns its claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role == "" {
		claims.Role = RoleUser
	}
	return &claims, nil
}

// ExtractToken 从 Authorization header 中提取 bearer token
func ExtractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.Split(h, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
