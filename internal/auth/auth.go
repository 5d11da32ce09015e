package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"skillconnect/internal/config"
	"skillconnect/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("refresh token is invalid, revoked or expired")
)

const userIDKey = "userID"

type Claims struct {
	UserID uint `json:"userId"`
	jwt.RegisteredClaims
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Issuer 按配置签发、校验 access token，并负责 refresh token 的签发与一次性消费。
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg config.Config) *Issuer {
	return &Issuer{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

// AccessToken 签发 HS256 access token，sub 与 userId 均为用户 id。
func (i *Issuer) AccessToken(userID uint) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse 校验签名与过期时间，失败时返回包装了 ErrInvalidToken 的错误。
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// IssueRefresh 生成随机 refresh token 并落库；tx 可以是事务。
func (i *Issuer) IssueRefresh(tx *gorm.DB, userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, Token: token, ExpiresAt: i.now().Add(i.refreshTTL)}
	if err := tx.Create(&rt).Error; err != nil {
		return "", fmt.Errorf("save refresh token: %w", err)
	}
	return token, nil
}

// ConsumeRefresh 原子地吊销一个有效 refresh token 并返回其所属用户，并发重放只有一次成功。
func (i *Issuer) ConsumeRefresh(tx *gorm.DB, token string) (uint, error) {
	var rt models.RefreshToken
	if err := tx.Where("token = ?", token).First(&rt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrInvalidRefreshToken
		}
		return 0, err
	}
	now := i.now()
	res := tx.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL AND expires_at > ?", rt.ID, now).
		Update("revoked_at", now)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrInvalidRefreshToken
	}
	return rt.UserID, nil
}

// BearerToken 从 Authorization 头中取出 token，缺少 Bearer 前缀时返回空串。
func BearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// Middleware 校验 Bearer token 且要求用户仍然存在，通过后在上下文中记录用户 id。
func Middleware(iss *Issuer, db *gorm.DB) gin.HandlerFunc {
	deny := func(c *gin.Context, msg string) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
	}
	return func(c *gin.Context) {
		tokenStr := BearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			deny(c, "Access denied")
			return
		}
		claims, err := iss.Parse(tokenStr)
		if err != nil {
			deny(c, "Invalid token")
			return
		}
		var n int64
		if err := db.Model(&models.User{}).Where("id = ?", claims.UserID).Count(&n).Error; err != nil || n == 0 {
			deny(c, "User not found")
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// GetUserID 返回 Middleware 记录的用户 id，未认证时为 0。
func GetUserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}
