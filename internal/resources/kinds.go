// Package resources declares the resource kinds the CLI manages and the
// verbs each exposes.
package resources

import (
	"sort"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/models"
)

// Kind is a resource kind together with its verb table.
type Kind struct {
	Name   string
	Help   string
	Schema *models.Schema
	Verbs  []Verb
}

// Verb returns the named verb.
func (k *Kind) Verb(name string) (Verb, bool) {
	for _, v := range k.Verbs {
		if v.Name == name {
			return v, true
		}
	}
	return Verb{}, false
}

var userRef = models.RelatedType{Resource: "user", Criterion: "username"}

// Schemas of the resource kinds.
var (
	UserSchema = models.MustSchema("user", "/users/",
		models.F("username", models.Unique()),
		models.F("email", models.Optional()),
		models.F("first_name", models.Optional()),
		models.F("last_name", models.Optional()),
		models.F("is_superuser", models.Typed(models.Bool), models.Optional(),
			models.HelpText("Whether the user is a superuser.")),
		models.F("password", models.Secret(), models.Optional()),
	)

	TeamSchema = models.MustSchema("team", "/teams/",
		models.F("name", models.Unique()),
		models.F("organization", models.Typed(models.Related("organization"))),
		models.F("description", models.Optional()),
	)

	HostSchema = models.MustSchema("host", "/hosts/",
		models.F("name", models.Unique()),
		models.F("description", models.Optional()),
		models.F("inventory", models.Typed(models.Related("inventory"))),
		models.F("enabled", models.Typed(models.Bool), models.Default(true)),
		models.F("variables", models.Typed(models.File), models.Optional(), models.NotFilterable(),
			models.HelpText("Host variables, read from a YAML or JSON file.")),
	)

	CredentialSchema = models.MustSchema("credential", "/credentials/",
		models.F("name", models.Unique()),
		models.F("description", models.Optional()),
		models.Implicit("owner", credentialOwner),
		models.F("user", models.Typed(userRef), models.Optional()),
		models.F("team", models.Typed(models.Related("team")), models.Optional()),
		models.F("kind", models.Typed(models.Choice("ssh", "scm", "aws", "rax")), models.Default("ssh"),
			models.HelpText("The type of credential being added. Valid options are: ssh, scm, aws, rax.")),
		models.F("username", models.Optional()),
		models.F("password", models.Secret(), models.Optional()),
		models.F("private_key", models.Typed(models.File), models.Optional(), models.NotFilterable()),
		models.F("private_key_password", models.Secret(), models.Optional()),
		models.F("sudo_username", models.Optional()),
		models.F("sudo_password", models.Secret(), models.Optional()),
		models.F("vault_password", models.Secret(), models.Optional()),
		models.F("access_key", models.Optional()),
		models.F("secret_key", models.Secret(), models.Optional()),
		models.F("api_key", models.Secret(), models.Optional()),
	)

	JobTemplateSchema = models.MustSchema("job_template", "/job_templates/",
		models.F("name", models.Unique()),
		models.F("description", models.Optional()),
		models.F("job_type", models.Typed(models.Choice("run", "check")), models.Default("run")),
		models.F("inventory", models.Typed(models.Related("inventory"))),
		models.F("project", models.Typed(models.Related("project"))),
		models.F("playbook"),
		models.F("machine_credential", models.Typed(models.Related("credential"))),
		models.F("cloud_credential", models.Typed(models.Related("credential")), models.Optional()),
		models.F("forks", models.Typed(models.Int), models.Default(0)),
		models.F("limit", models.Optional()),
		models.F("verbosity", models.Typed(models.MappedChoice(
			[]string{"default", "verbose", "debug"},
			map[string]interface{}{"default": 0, "verbose": 1, "debug": 2},
		)), models.Default("default")),
		models.F("job_tags", models.Optional()),
		models.F("variables", models.Typed(models.File), models.Optional(), models.NotFilterable()),
	)

	JobSchema = models.MustSchema("job", "/jobs/",
		models.F("name", models.Optional()),
		models.F("job_template", models.Typed(models.Related("job_template")), models.Optional()),
		models.F("status", models.Typed(models.Choice(
			models.JobNew, models.JobPending, models.JobWaiting, models.JobRunning,
			models.JobSuccessful, models.JobFailed, models.JobError, models.JobCanceled,
		)), models.Optional()),
		models.F("failed", models.Typed(models.Bool), models.Optional()),
		models.F("elapsed", models.ReadOnly(), models.Optional(), models.NotFilterable()),
	)

	// Kinds that are only looked up by name when resolving related fields.
	organizationSchema = models.MustSchema("organization", "/organizations/", models.F("name", models.Unique()))
	inventorySchema    = models.MustSchema("inventory", "/inventories/", models.F("name", models.Unique()))
	projectSchema      = models.MustSchema("project", "/projects/", models.F("name", models.Unique()))
)

// credentialOwner derives which of user or team owns a credential.
func credentialOwner(values models.Record) (interface{}, error) {
	user := present(values["user"])
	team := present(values["team"])
	switch {
	case user && team:
		return nil, apierr.BadRequest("A credential may not be owned by both a user and a team.")
	case user:
		return "user", nil
	case team:
		return "team", nil
	}
	return nil, nil
}

func present(v interface{}) bool {
	if v == nil || models.IsUnset(v) {
		return false
	}
	switch t := v.(type) {
	case int:
		return t != 0
	case string:
		return t != ""
	}
	return true
}

var crudVerbs = []Verb{verbGet, verbList, verbCreate, verbModify, verbDelete}

func crud(extra ...Verb) []Verb {
	return append(append([]Verb{}, crudVerbs...), extra...)
}

var kinds []*Kind

func init() {
	kinds = []*Kind{
		{Name: "user", Help: "Manage users within Ansible Tower.", Schema: UserSchema, Verbs: crud()},
		{Name: "team", Help: "Manage teams within Ansible Tower.", Schema: TeamSchema, Verbs: crud()},
		{Name: "host", Help: "Manage hosts belonging to an inventory.", Schema: HostSchema, Verbs: crud()},
		{Name: "credential", Help: "Manage credentials within Ansible Tower.", Schema: CredentialSchema, Verbs: crud()},
		{Name: "job_template", Help: "Manage job templates.", Schema: JobTemplateSchema, Verbs: crud(verbTemplateLaunch)},
		{Name: "job", Help: "Launch or monitor jobs.", Schema: JobSchema, Verbs: []Verb{verbJobLaunch, verbStatus, verbMonitor, verbGet, verbList}},
	}
}

var lookupOnly = []*models.Schema{organizationSchema, inventorySchema, projectSchema}

// Kinds returns the command-line resource kinds ordered by name.
func Kinds() []*Kind {
	out := make([]*Kind, len(kinds))
	copy(out, kinds)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the kind with the given name.
func Lookup(name string) (*Kind, bool) {
	for _, k := range kinds {
		if k.Name == name {
			return k, true
		}
	}
	return nil, false
}

// schemaFor finds the schema of any kind, including lookup-only ones.
func schemaFor(name string) (*models.Schema, bool) {
	if k, ok := Lookup(name); ok {
		return k.Schema, true
	}
	for _, s := range lookupOnly {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
