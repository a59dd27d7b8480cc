package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swissmarley/agile-compass/handlers"
	"github.com/swissmarley/agile-compass/logging"
	"github.com/swissmarley/agile-compass/middleware"
	"github.com/swissmarley/agile-compass/services"
	"github.com/swissmarley/agile-compass/store"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	logging.InitLogger()

	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Tracker Service...")
	if err := godotenv.Load(".env"); err != nil {
		logging.Logger.Warnf("Event ID: ENV_LOAD_ERROR, Description: Error loading .env file: %v", err)
	}

	mongoURI := os.Getenv("MONGO_URI")
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "tracker"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: Database connection for MongoDB failed: %v", err)
	}
	defer client.Disconnect(ctx)

	if err := client.Ping(ctx, nil); err != nil {
		logging.Logger.Fatalf("Event ID: DB_PING_FAILED, Description: MongoDB connection ping error: %v", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB, database %s.", mongoDBName)

	st := store.NewMongoStore(client, mongoDBName)

	notificationService := services.NewNotificationService(st)
	taskService := services.NewTaskService(st, notificationService)
	projectService := services.NewProjectService(st, notificationService)
	sprintService := services.NewSprintService(st, notificationService)
	teamService := services.NewTeamService(st)
	userService := services.NewUserService(st)
	chatService := services.NewChatService(st, notificationService)

	taskHandler := handlers.NewTaskHandler(taskService)
	projectHandler := handlers.NewProjectHandler(projectService)
	sprintHandler := handlers.NewSprintHandler(sprintService)
	teamHandler := handlers.NewTeamHandler(teamService)
	userHandler := handlers.NewUserHandler(userService)
	chatHandler := handlers.NewChatHandler(chatService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	r := mux.NewRouter()
	r.Use(middleware.JWTAuthMiddleware(st))

	r.HandleFunc("/api/projects", projectHandler.CreateProject).Methods(http.MethodPost)
	r.HandleFunc("/api/projects", projectHandler.GetProjects).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{projectID}", projectHandler.GetProject).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{projectID}", projectHandler.UpdateProject).Methods(http.MethodPut)
	r.HandleFunc("/api/projects/{projectID}", projectHandler.DeleteProject).Methods(http.MethodDelete)
	r.HandleFunc("/api/projects/{projectID}/tasks", taskHandler.GetTasksByProject).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{projectID}/sprints", sprintHandler.GetSprintsByProject).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{projectID}/sprints/active", sprintHandler.GetActiveSprint).Methods(http.MethodGet)

	r.HandleFunc("/api/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.UpdateTask).Methods(http.MethodPut)
	r.HandleFunc("/api/tasks/{taskID}/sprint", taskHandler.AssignToSprint).Methods(http.MethodPatch)

	r.HandleFunc("/api/sprints", sprintHandler.CreateSprint).Methods(http.MethodPost)
	r.HandleFunc("/api/sprints/{sprintID}", sprintHandler.UpdateSprint).Methods(http.MethodPut)

	r.HandleFunc("/api/teams", teamHandler.CreateTeam).Methods(http.MethodPost)
	r.HandleFunc("/api/teams", teamHandler.GetTeams).Methods(http.MethodGet)
	r.HandleFunc("/api/teams/{teamID}", teamHandler.GetTeam).Methods(http.MethodGet)
	r.HandleFunc("/api/teams/{teamID}", teamHandler.UpdateTeam).Methods(http.MethodPut)
	r.HandleFunc("/api/teams/{teamID}", teamHandler.DeleteTeam).Methods(http.MethodDelete)

	r.HandleFunc("/api/users", userHandler.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/api/users", userHandler.GetUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}", userHandler.GetUser).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}", userHandler.UpdateUser).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{userID}", userHandler.DeleteUser).Methods(http.MethodDelete)
	r.HandleFunc("/api/users/{userID}/team", userHandler.AssignToTeam).Methods(http.MethodPatch)

	r.HandleFunc("/api/chat/channels", chatHandler.CreateChannel).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/channels", chatHandler.GetChannels).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/channels/{channelID}/threads", chatHandler.CreateThread).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/channels/{channelID}/threads", chatHandler.GetThreads).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/threads/{threadID}/messages", chatHandler.PostMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/threads/{threadID}/messages", chatHandler.GetMessages).Methods(http.MethodGet)

	r.HandleFunc("/api/notifications", notificationHandler.GetNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/read-all", notificationHandler.MarkAllAsRead).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{notificationID}/read", notificationHandler.MarkAsRead).Methods(http.MethodPost)

	corsRouter := enableCORS(r)

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	serverAddress := fmt.Sprintf(":%s", serverPort)
	logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", serverAddress)

	if err := http.ListenAndServe(serverAddress, corsRouter); err != nil {
		logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
	}
}
