package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/models"
	"github.com/rflorenc/tower-cli/internal/output"
	"github.com/rflorenc/tower-cli/internal/resources"
)

var jobTemplateRef = models.Related("job_template")

func newKindCmd(app *App, k *resources.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   k.Name,
		Short: k.Help,
	}
	for _, v := range k.Verbs {
		cmd.AddCommand(newVerbCmd(app, k, v))
	}
	return cmd
}

// verbFlags are the non-field options of a verb.
type verbFlags struct {
	failOnFound     bool
	forceOnExists   bool
	createOnMissing bool
	failOnMissing   bool
	allPages        bool
	jobTemplate     string
	monitor         bool
	timeout         time.Duration
	secrets         []string
}

func newVerbCmd(app *App, k *resources.Kind, v resources.Verb) *cobra.Command {
	fields := VerbFields(k.Schema, v.Fields)
	var vf verbFlags

	cmd := &cobra.Command{
		Use:   verbUse(v),
		Short: v.Help,
		Args:  pkArgs(v.PK),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(cmd.Flags(), fields, &vf, args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := app.service(ctx)
			if err != nil {
				return err
			}
			res, err := svc.Run(ctx, k.Name, v.Name, req)
			if err != nil {
				return err
			}
			return output.New(app.Out, app.settings.Format).Print(res, k.Schema)
		},
	}

	f := cmd.Flags()
	for _, fld := range fields {
		f.String(fld.FlagName(), "", fieldUsage(fld))
	}

	switch v.Name {
	case "create":
		f.BoolVar(&vf.failOnFound, "fail-on-found", false, "Fail if a matching record already exists.")
		f.BoolVar(&vf.forceOnExists, "force-on-exists", false, "Update the matching record if one already exists.")
	case "modify":
		f.BoolVar(&vf.createOnMissing, "create-on-missing", false, "Create the record if no match exists.")
	case "delete":
		f.BoolVar(&vf.failOnMissing, "fail-on-missing", false, "Fail if no matching record exists.")
	case "list":
		f.BoolVar(&vf.allPages, "all-pages", false, "Follow pagination and return every result.")
	case "launch":
		if k.Name == "job" {
			f.StringVar(&vf.jobTemplate, "job-template", "", "Name or ID of the job template to launch.")
		}
		f.BoolVar(&vf.monitor, "monitor", false, "Wait for the job to finish.")
		f.DurationVar(&vf.timeout, "timeout", 0, "Give up monitoring after this long.")
		f.StringArrayVar(&vf.secrets, "secret", nil, "A password the job needs to start, as name=value. Repeatable.")
	case "monitor":
		f.DurationVar(&vf.timeout, "timeout", 0, "Give up monitoring after this long.")
	}
	return cmd
}

// VerbFields returns the schema fields a verb exposes as flags.
func VerbFields(schema *models.Schema, use resources.FieldUse) []models.Field {
	var out []models.Field
	for _, f := range schema.Fields() {
		if f.Implicit {
			continue
		}
		switch {
		case use == resources.FieldsFilter && f.Filterable:
		case use == resources.FieldsWrite && f.Writable():
		default:
			continue
		}
		out = append(out, f)
	}
	return out
}

func buildRequest(flags *pflag.FlagSet, fields []models.Field, vf *verbFlags, args []string) (*resources.Request, error) {
	req := &resources.Request{
		FailOnFound:     vf.failOnFound,
		ForceOnExists:   vf.forceOnExists,
		CreateOnMissing: vf.createOnMissing,
		FailOnMissing:   vf.failOnMissing,
		AllPages:        vf.allPages,
		Monitor:         vf.monitor,
		Timeout:         vf.timeout,
	}
	if len(args) > 0 {
		pk, err := strconv.Atoi(args[0])
		if err != nil || pk <= 0 {
			return nil, apierr.Usage("invalid id %q", args[0])
		}
		req.PK = pk
	}

	values, err := FieldValues(flags, fields)
	if err != nil {
		return nil, err
	}
	req.Values = values

	if flags.Changed("job-template") {
		ref, err := jobTemplateRef.Convert(vf.jobTemplate)
		if err != nil {
			return nil, apierr.Usage("--job-template: %v", err)
		}
		req.JobTemplate = ref
	}
	if len(vf.secrets) > 0 {
		secrets, err := resources.ParseSecrets(vf.secrets)
		if err != nil {
			return nil, err
		}
		req.Secrets = secrets
	}
	return req, nil
}

// FieldValues converts the field flags into a write or filter map. Flags
// not given map to models.Unset.
func FieldValues(flags *pflag.FlagSet, fields []models.Field) (models.Record, error) {
	values := make(models.Record, len(fields))
	for _, f := range fields {
		fl := flags.Lookup(f.FlagName())
		if fl == nil || !fl.Changed {
			values[f.Name] = models.Unset
			continue
		}
		v, err := f.Type.Convert(fl.Value.String())
		if err != nil {
			return nil, apierr.Usage("invalid value for %s: %v", f.Option(), err)
		}
		values[f.Name] = v
	}
	return values, nil
}

func fieldUsage(f models.Field) string {
	return f.HelpString() + " [" + f.Flags() + "]"
}

func verbUse(v resources.Verb) string {
	switch v.PK {
	case "required":
		return v.Name + " ID"
	case "optional":
		return v.Name + " [ID]"
	}
	return v.Name
}

func pkArgs(pk string) cobra.PositionalArgs {
	limit := 0
	if pk != "" {
		limit = 1
	}
	return func(_ *cobra.Command, args []string) error {
		if len(args) > limit {
			return apierr.Usage("unexpected arguments: %s", strings.Join(args[limit:], " "))
		}
		if pk == "required" && len(args) == 0 {
			return apierr.Usage("an ID is required")
		}
		return nil
	}
}
