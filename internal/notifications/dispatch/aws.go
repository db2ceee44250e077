package dispatch

import (
	"context"
	stderrors "errors"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

const (
	providerSNS = "sns"
	providerSES = "ses"
)

// SNSService and SESService are the SDK methods used, for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

var (
	awsThrottleCodes = map[string]bool{
		"Throttling":                             true,
		"ThrottlingException":                    true,
		"ThrottledException":                     true,
		"TooManyRequestsException":               true,
		"KMSThrottlingException":                 true,
		"MaxSendingRateExceeded":                 true,
		"SendingQuotaExceeded":                   true,
		"RequestLimitExceeded":                   true,
		"ProvisionedThroughputExceededException": true,
	}
	awsAuthCodes = map[string]bool{
		"AuthorizationError":            true,
		"AccessDenied":                  true,
		"AccessDeniedException":         true,
		"InvalidClientTokenId":          true,
		"UnrecognizedClientException":   true,
		"SignatureDoesNotMatch":         true,
		"ExpiredToken":                  true,
		"ExpiredTokenException":         true,
		"AccountSendingPausedException": true,
	}
)

// SMSClient publishes transactional SMS through SNS.
type SMSClient struct {
	sns      SNSService
	senderID string
}

func NewSMSClient(svc SNSService, senderID string) *SMSClient {
	return &SMSClient{sns: svc, senderID: senderID}
}

func (c *SMSClient) Provider() string { return providerSNS }

func (c *SMSClient) Send(ctx context.Context, msg Message) (models.DispatchResult, error) {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if c.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(c.senderID)}
	}

	out, err := c.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.To),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		err = classifyAWSError(providerSNS, err)
		return failure(err), err
	}
	return success(aws.ToString(out.MessageId)), nil
}

// EmailClient sends plain-text email through SES.
type EmailClient struct {
	ses       SESService
	fromEmail string
}

func NewEmailClient(svc SESService, fromEmail string) *EmailClient {
	return &EmailClient{ses: svc, fromEmail: fromEmail}
}

func (c *EmailClient) Provider() string { return providerSES }

func (c *EmailClient) Send(ctx context.Context, msg Message) (models.DispatchResult, error) {
	input := &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(c.fromEmail),
	}
	if msg.IdempotencyKey != "" {
		input.Tags = []sestypes.MessageTag{{Name: aws.String("notification_id"), Value: aws.String(msg.IdempotencyKey)}}
	}

	out, err := c.ses.SendEmail(ctx, input)
	if err != nil {
		err = classifyAWSError(providerSES, err)
		return failure(err), err
	}
	return success(aws.ToString(out.MessageId)), nil
}

// classifyAWSError turns an SDK error into the dispatch error taxonomy.
// Unknown client faults are treated as rejections, server faults as outages.
func classifyAWSError(provider string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return apperrors.NewDispatchTimeoutError(provider, err)
	}

	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return apperrors.NewProviderUnavailableError(provider, err)
	}

	code := apiErr.ErrorCode()
	switch {
	case awsThrottleCodes[code]:
		return apperrors.NewProviderRateLimitedError(provider, code+": "+apiErr.ErrorMessage())
	case awsAuthCodes[code]:
		return apperrors.NewProviderAuthFailedError(provider, err)
	case apiErr.ErrorFault() == smithy.FaultServer:
		return apperrors.NewProviderUnavailableError(provider, err)
	default:
		return apperrors.NewProviderRejectedError(provider, code+": "+apiErr.ErrorMessage())
	}
}
