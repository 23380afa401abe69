// Package dispatch submits uninstall commands to AWS Systems Manager
// Run Command, one instance per request. Delivery, retries and
// execution status are owned by SSM; this package only issues the
// initial request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"

	"github.com/nragusa/tm-rapid7-uninstall/internal/command"
)

// timeoutSeconds bounds how long SSM will try to deliver a command to
// the target before marking it failed. Fixed for every request.
const timeoutSeconds int32 = 600

// API is the slice of the SSM client this package uses. Satisfied by
// *ssm.Client and by fakes in tests.
type API interface {
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	DescribeInstanceInformation(ctx context.Context, params *ssm.DescribeInstanceInformationInput, optFns ...func(*ssm.Options)) (*ssm.DescribeInstanceInformationOutput, error)
}

// Error is a per-row dispatch failure. It carries the target so the
// operator can build a retry CSV from the failure report.
type Error struct {
	InstanceID string
	Err        error
}

func (e *Error) Error() string {
	var apiErr smithy.APIError
	if errors.As(e.Err, &apiErr) {
		return fmt.Sprintf("dispatch to %s: %s: %s", e.InstanceID, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Sprintf("dispatch to %s: %v", e.InstanceID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrAgentOffline is returned by Preflight when the instance is not a
// managed node with an online SSM agent.
var ErrAgentOffline = errors.New("ssm agent is not online")

// Dispatcher issues Run Command requests against one region for one
// run. The region is fixed in the aws.Config it is constructed with;
// there is no per-row override.
type Dispatcher struct {
	client   API
	comment  string
	logGroup string
}

// New builds a dispatcher around an SSM client. runID is stamped into
// every request's comment field, and command output is mirrored to a
// CloudWatch log group derived from the package name.
func New(client API, runID, pkg string) *Dispatcher {
	return &Dispatcher{
		client:   client,
		comment:  "tm-uninstall run " + runID,
		logGroup: LogGroup(pkg),
	}
}

// NewFromConfig builds a dispatcher with a real SSM client for the
// given AWS config.
func NewFromConfig(cfg aws.Config, runID, pkg string) *Dispatcher {
	return New(ssm.NewFromConfig(cfg), runID, pkg)
}

// LogGroup returns the CloudWatch log group that receives the remote
// command's output for the given package.
func LogGroup(pkg string) string {
	return fmt.Sprintf("/tm/%sUninstall", strings.ReplaceAll(strings.ToLower(pkg), " ", "-"))
}

// Dispatch submits exactly one request targeting instanceID. The ID
// must already have passed validation. It returns the SSM command ID
// on acknowledgement.
func (d *Dispatcher) Dispatch(ctx context.Context, instanceID string, spec command.Spec) (string, error) {
	out, err := d.client.SendCommand(ctx, &ssm.SendCommandInput{
		InstanceIds:    []string{instanceID},
		DocumentName:   aws.String(spec.Document),
		Parameters:     map[string][]string{"commands": spec.Lines},
		TimeoutSeconds: aws.Int32(timeoutSeconds),
		Comment:        aws.String(d.comment),
		CloudWatchOutputConfig: &types.CloudWatchOutputConfig{
			CloudWatchOutputEnabled: true,
			CloudWatchLogGroupName:  aws.String(d.logGroup),
		},
	})
	if err != nil {
		return "", &Error{InstanceID: instanceID, Err: err}
	}
	if out.Command == nil || out.Command.CommandId == nil {
		return "", &Error{InstanceID: instanceID, Err: errors.New("ssm returned no command id")}
	}
	return *out.Command.CommandId, nil
}

// Preflight checks that the instance is known to SSM and its agent is
// pinging. Optional; the default path skips it and lets SendCommand
// surface unreachable instances per row.
func (d *Dispatcher) Preflight(ctx context.Context, instanceID string) error {
	out, err := d.client.DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{
		Filters: []types.InstanceInformationStringFilter{
			{Key: aws.String("InstanceIds"), Values: []string{instanceID}},
		},
	})
	if err != nil {
		return &Error{InstanceID: instanceID, Err: err}
	}
	for _, info := range out.InstanceInformationList {
		if aws.ToString(info.InstanceId) == instanceID && info.PingStatus == types.PingStatusOnline {
			return nil
		}
	}
	return &Error{InstanceID: instanceID, Err: ErrAgentOffline}
}
