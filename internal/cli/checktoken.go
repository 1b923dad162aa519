package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/snapcircle/dmsocket/internal/config"
	"github.com/snapcircle/dmsocket/internal/configtypes"
	"github.com/snapcircle/dmsocket/internal/credential"

	"github.com/cristalhq/jwt/v5"
	"github.com/spf13/cobra"
)

var errTokenExpired = errors.New("token expired")

func CheckToken() *cobra.Command {
	var checkTokenConfigFile string
	var checkTokenCmd = &cobra.Command{
		Use:   "checktoken [TOKEN]",
		Short: "Check connection JWT",
		Long:  `Inspect connection JWT claims, signature is verified when auth.hmac_secret_key is set`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, _, err := config.GetConfig(cmd, checkTokenConfigFile)
			if err != nil {
				fmt.Printf("error getting config: %v\n", err)
				os.Exit(1)
			}
			token := cfg.Auth.Token
			if len(args) == 1 {
				token = args[0]
			}
			claims, verified, err := checkToken(cfg.Auth, token, time.Now())
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			user := "unknown user"
			if claims.HasUserID {
				user = fmt.Sprintf("user %d", claims.UserID)
			}
			signature := "signature not verified"
			if verified {
				signature = "signature verified"
			}
			fmt.Printf("valid token for %s (%s, %s)\npayload: %s\n", user, claims.Algorithm, signature, string(claims.Raw))
		},
	}
	checkTokenCmd.Flags().StringVarP(&checkTokenConfigFile, "config", "c", "config.json", "path to config file")
	config.DefineFlags(checkTokenCmd)
	return checkTokenCmd
}

// checkToken inspects token claims and verifies the HS256 signature when a
// secret is configured.
func checkToken(auth configtypes.Auth, token string, now time.Time) (credential.Claims, bool, error) {
	claims, err := credential.Inspect(token, auth.UserIDClaim)
	if err != nil {
		return credential.Claims{}, false, err
	}
	verified := false
	if auth.HMACSecretKey != "" {
		verifier, err := jwt.NewVerifierHS(jwt.HS256, []byte(auth.HMACSecretKey))
		if err != nil {
			return credential.Claims{}, false, fmt.Errorf("error creating HMAC verifier: %w", err)
		}
		if _, err := jwt.Parse([]byte(credential.Strip(token)), verifier); err != nil {
			return credential.Claims{}, false, fmt.Errorf("token with algorithm %s and claims %s has error: %w", claims.Algorithm, string(claims.Raw), err)
		}
		verified = true
	}
	if claims.Expired(now) {
		return credential.Claims{}, false, fmt.Errorf("%w at %s", errTokenExpired, claims.ExpiresAt.Format(time.RFC3339))
	}
	return claims, verified, nil
}
