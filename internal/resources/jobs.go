package resources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/engine"
	"github.com/rflorenc/tower-cli/internal/models"
)

// LaunchOptions controls Launch.
type LaunchOptions struct {
	Monitor bool
	Timeout time.Duration
	// Secrets are passwords given up front; the SecretSource is asked for
	// the rest.
	Secrets map[string]string
}

type startInfo struct {
	CanStart        bool     `json:"can_start"`
	PasswordsNeeded []string `json:"passwords_needed_to_start"`
}

// Launch creates a job from the job template and starts it. The job copies
// the template's data under a generated name. With Monitor set it waits for
// the job and returns its final status; otherwise it returns the new job id.
func (s *Service) Launch(ctx context.Context, templateID int, opts LaunchOptions) (interface{}, error) {
	jt, err := s.Engine(JobTemplateSchema).Get(ctx, templateID, nil)
	if err != nil {
		return nil, err
	}

	data := jt.Clone()
	delete(data, "id")
	data["job_template"] = jt.ID()
	data["name"] = fmt.Sprintf("CLI Job Invocation: %s", s.now().Format("2006-01-02 15:04:05.000000"))

	resp, err := s.transport.Request(ctx, http.MethodPost, JobSchema.Endpoint, nil, data)
	if err != nil {
		return nil, err
	}
	var job models.Record
	if err := resp.JSON(&job); err != nil {
		return nil, err
	}
	jobID := job.ID()
	entry := log.WithFields(log.Fields{"job": jobID, "job_template": templateID})
	entry.Debug("job created")

	startPath := JobSchema.DetailPath(jobID) + "start/"
	resp, err = s.transport.Request(ctx, http.MethodGet, startPath, nil, nil)
	if err != nil {
		return nil, err
	}
	var info startInfo
	if err := resp.JSON(&info); err != nil {
		return nil, err
	}

	start := models.Record{}
	for _, name := range info.PasswordsNeeded {
		if v, ok := opts.Secrets[name]; ok {
			start[name] = v
			continue
		}
		v, err := s.secrets.Secret(name)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", name)
		}
		start[name] = v
	}
	if _, err := s.transport.Request(ctx, http.MethodPost, startPath, nil, start); err != nil {
		return nil, err
	}
	entry.Info("job started")

	if opts.Monitor {
		return s.Monitor(ctx, jobID, opts.Timeout)
	}
	return &engine.Result{Changed: true, ID: jobID}, nil
}

// Status returns the status summary of a job.
func (s *Service) Status(ctx context.Context, jobID int) (models.JobStatus, error) {
	rec, err := s.Engine(JobSchema).Get(ctx, jobID, nil)
	if err != nil {
		return models.JobStatus{}, err
	}
	return models.JobStatusFrom(rec), nil
}

// Monitor polls the job until it succeeds or fails. The wait between polls
// starts at the minimum poll interval and doubles up to the maximum. A
// failed job returns its status together with a JobFailed error; a timeout
// greater than zero bounds the whole wait.
func (s *Service) Monitor(ctx context.Context, jobID int, timeout time.Duration) (models.JobStatus, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	entry := log.WithField("job", jobID)

	interval := s.pollMin
	for {
		st, err := s.Status(ctx, jobID)
		if err != nil {
			return st, timeoutOr(ctx, err)
		}
		entry.WithField("status", st.Status).Debug("polled job")
		if st.Succeeded() {
			return st, nil
		}
		if st.Finished() {
			return st, apierr.New(apierr.KindJobFailed, "Job %d failed with status %q.", jobID, st.Status)
		}

		if err := s.sleep(ctx, interval); err != nil {
			return st, timeoutOr(ctx, err)
		}
		interval *= 2
		if interval > s.pollMax {
			interval = s.pollMax
		}
	}
}

func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierr.New(apierr.KindTimeout, "Monitoring aborted due to timeout.")
	}
	return err
}
