package services

import (
	"context"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var (
	// FirebaseApp is the Firebase app instance
	FirebaseApp *firebase.App
	// MessagingClient is the Firebase Cloud Messaging client
	MessagingClient *messaging.Client
)

// InitFirebase initializes Firebase Admin SDK
func InitFirebase() error {
	ctx := context.Background()

	// Check if Firebase is configured
	serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
	if serviceAccountPath == "" {
		log.Println("Warning: FIREBASE_SERVICE_ACCOUNT_PATH not set. Push notifications will be disabled.")
		return nil
	}

	// Initialize Firebase app
	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return fmt.Errorf("error initializing firebase app: %v", err)
	}

	// Initialize messaging client
	client, err := app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("error getting messaging client: %v", err)
	}

	FirebaseApp = app
	MessagingClient = client

	log.Println("Firebase Cloud Messaging initialized successfully")
	return nil
}

var statusNotificationText = map[string]struct{ title, body string }{
	"ACCEPTED":  {"Puller on the way", "A puller accepted your ride request."},
	"ACTIVE":    {"Ride started", "Your ride is underway."},
	"COMPLETED": {"Ride completed", "Thanks for riding with Aeras."},
}

// SendRideStatusNotification sends a best-effort FCM push for a ride status
// change. A nil MessagingClient (Firebase not configured) is a silent no-op.
func SendRideStatusNotification(ctx context.Context, fcmToken, rideID, status string) error {
	if MessagingClient == nil || fcmToken == "" {
		return nil
	}
	text, ok := statusNotificationText[status]
	if !ok {
		return nil
	}

	message := &messaging.Message{
		Token: fcmToken,
		Notification: &messaging.Notification{
			Title: text.title,
			Body:  text.body,
		},
		Data: map[string]string{
			"type":   "ride_status",
			"rideId": rideID,
			"status": status,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "aeras_rides",
			},
		},
	}

	if _, err := MessagingClient.Send(ctx, message); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
