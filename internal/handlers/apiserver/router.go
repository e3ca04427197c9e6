package apiserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Routes bundles the handlers mounted by NewRouter.
type Routes struct {
	Auth    *AuthHandler
	Users   *UserHandler
	Friends *FriendHandler
	Rooms   *RoomHandler
	Uploads *UploadHandler

	// AuthMW guards /api/v1 and the live channel.
	AuthMW mux.MiddlewareFunc

	// Live serves the websocket upgrade at LivePath. Skipped when nil.
	Live     http.Handler
	LivePath string

	// StaticPrefix/StaticDir expose locally stored uploads. Skipped when
	// StaticDir is empty.
	StaticPrefix string
	StaticDir    string
}

// NewRouter 设置所有 HTTP 路由。
func NewRouter(rt Routes) *mux.Router {
	r := mux.NewRouter()

	// 认证路由
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", rt.Auth.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", rt.Auth.Login).Methods(http.MethodPost)

	// API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rt.AuthMW)

	apiRouter.HandleFunc("/auth/logout", rt.Auth.LogoutHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/account", rt.Auth.DeleteAccountHandler).Methods(http.MethodDelete)

	// 用户路由，固定路径需在 {userID} 之前注册
	apiRouter.HandleFunc("/users/me", rt.Users.GetMyProfileHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/me", rt.Users.UpdateMyProfileHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/users/me/photo", rt.Uploads.ProfilePhotoHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/users/lookup", rt.Users.LookupUserHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/{userID}", rt.Users.GetUserProfileHandler).Methods(http.MethodGet)

	// 好友路由
	apiRouter.HandleFunc("/friends", rt.Friends.ListFriendsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends/candidates", rt.Friends.SearchCandidatesHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends/{userID}", rt.Friends.UnfriendHandler).Methods(http.MethodDelete)

	// 好友请求路由
	friendRequestRouter := apiRouter.PathPrefix("/friend-requests").Subrouter()
	friendRequestRouter.HandleFunc("", rt.Friends.SendFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/incoming", rt.Friends.ListIncomingHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/outgoing", rt.Friends.ListOutgoingHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/{userID}/accept", rt.Friends.AcceptFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{userID}/decline", rt.Friends.DeclineFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{userID}", rt.Friends.CancelFriendRequestHandler).Methods(http.MethodDelete)

	// 聊天室路由
	apiRouter.HandleFunc("/rooms", rt.Rooms.ListRoomsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms", rt.Rooms.CreateRoomHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rooms/{roomID}", rt.Rooms.GetRoomHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms/{roomID}", rt.Rooms.DeleteRoomHandler).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/rooms/{roomID}/join", rt.Rooms.JoinRoomHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rooms/{roomID}/messages", rt.Rooms.ListMessagesHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms/{roomID}/messages", rt.Rooms.SendMessageHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rooms/{roomID}/images", rt.Uploads.ChatImageHandler).Methods(http.MethodPost)

	// WebSocket 实时通道，token 通过 ?token= 传递
	if rt.Live != nil {
		path := rt.LivePath
		if path == "" {
			path = "/ws"
		}
		r.Handle(path, rt.AuthMW(rt.Live)).Methods(http.MethodGet)
	}

	// 静态文件服务路由，用于访问本地存储上传的文件
	if rt.StaticDir != "" {
		staticPath := strings.TrimSuffix(rt.StaticPrefix, "/") + "/"
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(http.Dir(rt.StaticDir))))
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, MessageResponse{Message: "ok"})
	}).Methods(http.MethodGet)

	return r
}
