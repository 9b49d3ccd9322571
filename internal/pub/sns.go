package pub

import (
	"context"
	"fmt"
	"lunchbell/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const (
	protocolSMS     = "sms"
	pushTokenKey    = "token"
	subEndpointAttr = "Endpoint"
	smsTypeAttr     = "AWS.SNS.SMS.SMSType"
)

// snsAPI is the subset of *sns.Client used here.
type snsAPI interface {
	Subscribe(ctx context.Context, in *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	Unsubscribe(ctx context.Context, in *sns.UnsubscribeInput, optFns ...func(*sns.Options)) (*sns.UnsubscribeOutput, error)
	CreatePlatformEndpoint(ctx context.Context, in *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	DeleteEndpoint(ctx context.Context, in *sns.DeleteEndpointInput, optFns ...func(*sns.Options)) (*sns.DeleteEndpointOutput, error)
	GetSubscriptionAttributes(ctx context.Context, in *sns.GetSubscriptionAttributesInput, optFns ...func(*sns.Options)) (*sns.GetSubscriptionAttributesOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS binds and notifies the sms and push channels.
// An SMS binding is a subscription of the caller's number to the lunch topic; a push
// binding is a platform endpoint created from the browser's device token.
type SNS struct {
	cli         snsAPI
	topicArn    string
	platformArn string
}

func NewSNS(c *sns.Client, topicArn, platformArn string) *SNS {
	return newSNS(c, topicArn, platformArn)
}

func newSNS(c snsAPI, topicArn, platformArn string) *SNS {
	return &SNS{cli: c, topicArn: topicArn, platformArn: platformArn}
}

func (s *SNS) CreateBinding(ctx context.Context, identity string, kind types.Kind, address string, extra map[string]string) (string, error) {
	switch kind {
	case types.KindSMS:
		if s.topicArn == "" {
			return "", fmt.Errorf("sms topic is not configured")
		}
		if address == "" {
			return "", fmt.Errorf("sms binding requires a phone number")
		}
		out, err := s.cli.Subscribe(ctx, &sns.SubscribeInput{
			TopicArn:              aws.String(s.topicArn),
			Protocol:              aws.String(protocolSMS),
			Endpoint:              aws.String(address),
			ReturnSubscriptionArn: true,
		})
		if err != nil {
			return "", err
		}
		return aws.ToString(out.SubscriptionArn), nil

	case types.KindPush:
		if s.platformArn == "" {
			return "", fmt.Errorf("push platform application is not configured")
		}
		token := extra[pushTokenKey]
		if token == "" {
			return "", fmt.Errorf("push binding requires a device token")
		}
		out, err := s.cli.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
			PlatformApplicationArn: aws.String(s.platformArn),
			Token:                  aws.String(token),
			CustomUserData:         aws.String(identity),
		})
		if err != nil {
			return "", err
		}
		return aws.ToString(out.EndpointArn), nil
	}
	return "", fmt.Errorf("sns cannot bind channel %s", kind)
}

func (s *SNS) DeleteBinding(ctx context.Context, kind types.Kind, handle string) error {
	switch kind {
	case types.KindSMS:
		_, err := s.cli.Unsubscribe(ctx, &sns.UnsubscribeInput{SubscriptionArn: aws.String(handle)})
		return err
	case types.KindPush:
		_, err := s.cli.DeleteEndpoint(ctx, &sns.DeleteEndpointInput{EndpointArn: aws.String(handle)})
		return err
	}
	return fmt.Errorf("sns cannot unbind channel %s", kind)
}

// SMS returns the notifier for the sms channel.
func (s *SNS) SMS() *SNSSMS { return &SNSSMS{s} }

// Push returns the notifier for the push channel.
func (s *SNS) Push() *SNSPush { return &SNSPush{s} }

type SNSSMS struct{ s *SNS }

// Send resolves the subscribed phone number from the subscription and texts it directly,
// so one subscriber gets one message rather than a topic-wide broadcast.
func (n *SNSSMS) Send(ctx context.Context, handle, message string, _ types.Extra) error {
	attrs, err := n.s.cli.GetSubscriptionAttributes(ctx, &sns.GetSubscriptionAttributesInput{
		SubscriptionArn: aws.String(handle),
	})
	if err != nil {
		return err
	}
	phone := attrs.Attributes[subEndpointAttr]
	if phone == "" {
		return fmt.Errorf("subscription %s has no endpoint", handle)
	}
	_, err = n.s.cli.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			smsTypeAttr: {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	})
	return err
}

type SNSPush struct{ s *SNS }

func (n *SNSPush) Send(ctx context.Context, handle, message string, _ types.Extra) error {
	_, err := n.s.cli.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(handle),
		Message:   aws.String(message),
	})
	return err
}
