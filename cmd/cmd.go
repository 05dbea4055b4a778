// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// configFlag is the shared --config flag carried by every command that reads configuration.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// serveCommand runs the upload session API server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the upload session HTTP server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Bind address (overrides config)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

// authCommand handles Yoto authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Yoto authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authenticate with Yoto using the OAuth2 device flow",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the verification URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Check current authentication state",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Clear the stored Yoto token",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogout,
			},
		},
	}
}

// uploadCommand uploads local files or source URLs to a playlist
func uploadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "Upload audio files or youtube: keys to a playlist",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "playlist-id",
				Usage:    "Target playlist ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Playlist layout: chapters or tracks",
				Value: "chapters",
			},
			&cli.BoolFlag{
				Name:  "normalize",
				Usage: "Normalize loudness per file",
			},
			&cli.BoolFlag{
				Name:  "normalize-batch",
				Usage: "Normalize all files to a shared gain",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Upload,
	}
}

// configCommand handles configuration file operations
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create a config.toml from the embedded template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ConfigInit,
			},
		},
	}
}

// dbCommand handles database setup operations
func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database commands",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.DBMigrate,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.DBRollback,
			},
		},
	}
}
