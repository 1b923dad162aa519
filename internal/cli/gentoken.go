package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/snapcircle/dmsocket/internal/config"
	"github.com/snapcircle/dmsocket/internal/configtypes"

	"github.com/cristalhq/jwt/v5"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

func GenToken() *cobra.Command {
	var genTokenConfigFile string
	var genTokenUser int64
	var genTokenTTL int64
	var genTokenQuiet bool
	var genTokenCmd = &cobra.Command{
		Use:   "gentoken",
		Short: "Generate development connection JWT for user",
		Long:  `Generate HS256 connection JWT for user signed with auth.hmac_secret_key`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, _, err := config.GetConfig(cmd, genTokenConfigFile)
			if err != nil {
				fmt.Printf("error getting config: %v\n", err)
				os.Exit(1)
			}
			token, err := generateToken(cfg.Auth, genTokenUser, genTokenTTL, time.Now())
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			if genTokenQuiet {
				fmt.Print(token)
				return
			}
			exp := "without expiration"
			if genTokenTTL > 0 {
				exp = fmt.Sprintf("with expiration TTL %s", time.Duration(genTokenTTL)*time.Second)
			}
			fmt.Printf("HMAC SHA-256 JWT for user %d %s:\n%s\n", genTokenUser, exp, token)
		},
	}
	genTokenCmd.Flags().StringVarP(&genTokenConfigFile, "config", "c", "config.json", "path to config file")
	genTokenCmd.Flags().Int64VarP(&genTokenUser, "user", "u", 0, "numeric user ID")
	genTokenCmd.Flags().Int64VarP(&genTokenTTL, "ttl", "t", 3600*24*7, "token TTL in seconds, use -1 for token without expiration")
	genTokenCmd.Flags().BoolVarP(&genTokenQuiet, "quiet", "q", false, "only output the token without anything else")
	return genTokenCmd
}

// generateToken builds a development JWT for user. The user id is written to
// the configured claim as a number, sub always carries it as a string.
func generateToken(auth configtypes.Auth, userID int64, ttlSeconds int64, now time.Time) (string, error) {
	if auth.HMACSecretKey == "" {
		return "", errors.New("no HMAC secret key set")
	}
	if userID <= 0 {
		return "", errors.New("user ID must be positive")
	}
	signer, err := jwt.NewSignerHS(jwt.HS256, []byte(auth.HMACSecretKey))
	if err != nil {
		return "", fmt.Errorf("error creating HMAC signer: %w", err)
	}
	claims := jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(now),
		Subject:  strconv.FormatInt(userID, 10),
	}
	if ttlSeconds > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second))
	}
	encodedClaims, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	if auth.UserIDClaim != "" && auth.UserIDClaim != "sub" {
		encodedClaims, err = sjson.SetBytes(encodedClaims, auth.UserIDClaim, userID)
		if err != nil {
			return "", err
		}
	}
	token, err := jwt.NewBuilder(signer).Build(encodedClaims)
	if err != nil {
		return "", err
	}
	return token.String(), nil
}
