package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"caseboard/internal/config"
	"caseboard/internal/perm"
	"caseboard/internal/web"
)

func newServeCmd(app *App) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local database to remote boards over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = s.Close() }()
			if s.sqlite == nil {
				return writeErr(cmd, errors.New("serve needs a local database (drop --remote)"))
			}

			verifier, err := newVerifier(s.cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			scfg := web.ServerConfig{Addr: s.cfg.Listen}
			if listen != "" {
				scfg.Addr = listen
			}
			if verifier == nil {
				id := s.cfg.Identity
				scfg.Anonymous = &id
				s.log.WithField("identity", id.DisplayName()).Warn("no auth configured; every request acts as the local identity")
			} else {
				defer verifier.Close()
			}
			if s.cfg.Files.Kind == "local" {
				if dir, err := s.cfg.FilesDir(); err == nil {
					scfg.FilesDir = dir
				}
			}

			srv := web.NewServer(scfg, s.records, verifier, s.log)
			if err := srv.Start(ctx); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config listen)")
	return cmd
}

// newVerifier is nil when neither a shared secret nor a JWKS URL is set.
func newVerifier(cfg config.Config) (*perm.Verifier, error) {
	switch {
	case cfg.Auth.Secret != "":
		return perm.NewSecretVerifier([]byte(cfg.Auth.Secret)), nil
	case cfg.Auth.JWKSURL != "":
		return perm.NewJWKSVerifier(cfg.Auth.JWKSURL, cfg.Auth.Audience, cfg.Auth.Issuer)
	default:
		return nil, nil
	}
}
