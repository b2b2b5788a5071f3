package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pribylovaa/gdpr-admin/internal/apiclient"
	"github.com/pribylovaa/gdpr-admin/internal/app"
	"github.com/pribylovaa/gdpr-admin/internal/models"
)

var errUsage = errors.New("usage")

const usageText = `Usage: gdpr-admin [-config path] <command> [flags]

Commands:
  login    -email E [-password P]   sign in (password falls back to $GDPR_ADMIN_PASSWORD)
  register -email E [-password P]   create an operator account and sign in
  me                                fetch the current profile from the backend
  whoami                            print the cached profile without a request
  request  [-method M] [-data JSON] <path>
                                    authenticated call to any backend endpoint
  dsr list [-status S]              list data subject requests of your tenant
  dsr create -type T -subject EMAIL register a data subject request
  logout                            revoke the refresh token and clear the session
`

func usage(w io.Writer) { _, _ = io.WriteString(w, usageText) }

// run выполняет одну команду CLI; результат пишется в out.
func run(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login", "register":
		return runAuth(ctx, a, cmd, rest, out)
	case "me":
		u, err := a.Service.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, u)
	case "whoami":
		u, err := a.Service.CachedUser(ctx)
		if err != nil {
			return err
		}
		if u == nil {
			_, err = fmt.Fprintln(out, "not signed in")
			return err
		}
		return printJSON(out, u)
	case "request":
		return runRequest(ctx, a, rest, out)
	case "dsr":
		return runDSR(ctx, a, rest, out)
	case "logout":
		if err := a.Service.Logout(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "signed out")
		return err
	default:
		return errUsage
	}
}

func runAuth(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "operator email")
	password := fs.String("password", "", "operator password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *password == "" {
		*password = os.Getenv("GDPR_ADMIN_PASSWORD")
	}

	var (
		u   *models.StoredUser
		err error
	)
	if cmd == "register" {
		u, err = a.Service.Register(ctx, *email, *password)
	} else {
		u, err = a.Service.Login(ctx, *email, *password)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "signed in as %s (role=%s tenant=%s)\n", u.Email, orDash(u.Role), orDash(u.TenantID))
	return err
}

func runRequest(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	method := fs.String("method", http.MethodGet, "HTTP method")
	data := fs.String("data", "", "JSON request body")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	req := apiclient.Request{Method: strings.ToUpper(*method), Path: fs.Arg(0)}
	if *data != "" {
		if !json.Valid([]byte(*data)) {
			return fmt.Errorf("request: -data is not valid JSON")
		}
		req.Body = json.RawMessage(*data)
	}

	var raw json.RawMessage
	if err := a.Client.Do(ctx, req, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := out.Write(buf.Bytes())

	return err
}

func runDSR(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("dsr list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		status := fs.String("status", "", "filter by status")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}

		items, err := a.Service.ListDataRequests(ctx, models.DSRStatus(*status))
		if err != nil {
			return err
		}
		for _, d := range items {
			if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.Type, d.Status, d.SubjectEmail, d.CreatedAt.Format("2006-01-02")); err != nil {
				return err
			}
		}
		return nil

	case "create":
		fs := flag.NewFlagSet("dsr create", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		typ := fs.String("type", "", "access|erasure|rectification|portability")
		subject := fs.String("subject", "", "data subject email")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}

		d, err := a.Service.CreateDataRequest(ctx, models.DSRType(*typ), *subject)
		if err != nil {
			return err
		}
		return printJSON(out, d)

	default:
		return errUsage
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
