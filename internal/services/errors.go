package services

import "mobilechat/internal/apperrors"

var (
	ErrUserNotFound    = apperrors.New(apperrors.ErrNotFound, "用户不存在")
	ErrUserExists      = apperrors.New(apperrors.ErrAlreadyExists, "用户已存在")
	ErrEmailTaken      = apperrors.New(apperrors.ErrAlreadyExists, "邮箱已被使用")
	ErrNicknameTaken   = apperrors.New(apperrors.ErrAlreadyExists, "昵称已被使用")
	ErrNicknameInvalid = apperrors.New(apperrors.ErrInvalidArgument, "昵称必须为 3-20 个字符，且不能包含 . # [ ] $ /")
	ErrEmailInvalid    = apperrors.New(apperrors.ErrInvalidArgument, "邮箱格式不正确")
	ErrUserIDRequired  = apperrors.New(apperrors.ErrInvalidArgument, "用户 ID 不能为空")

	ErrFriendRequestSelf   = apperrors.New(apperrors.ErrInvalidArgument, "不能添加自己为好友")
	ErrAlreadyFriends      = apperrors.New(apperrors.ErrInvalidArgument, "你们已经是好友了")
	ErrFriendRequestExists = apperrors.New(apperrors.ErrInvalidArgument, "已存在待处理的好友请求")

	ErrRoomNotFound         = apperrors.New(apperrors.ErrNotFound, "聊天室不存在")
	ErrRoomNameRequired     = apperrors.New(apperrors.ErrInvalidArgument, "聊天室名称不能为空")
	ErrRoomPasswordRequired = apperrors.New(apperrors.ErrInvalidArgument, "加密聊天室必须设置密码")
	ErrRoomPasswordMismatch = apperrors.New(apperrors.ErrUnauthorized, "聊天室密码错误")
	ErrNotRoomCreator       = apperrors.New(apperrors.ErrUnauthorized, "只有创建者可以删除聊天室")
	ErrNotRoomMember        = apperrors.New(apperrors.ErrUnauthorized, "您不是该聊天室的成员")

	ErrMessageContent   = apperrors.New(apperrors.ErrInvalidArgument, "消息必须且只能包含文本或图片之一")
	ErrPasswordTooShort = apperrors.New(apperrors.ErrInvalidArgument, "密码至少需要 8 个字符")
	ErrFileTooLarge     = apperrors.New(apperrors.ErrInvalidArgument, "文件过大")
	ErrUnsupportedImage = apperrors.New(apperrors.ErrInvalidArgument, "不支持的图片类型")
	ErrUnknownTopic     = apperrors.New(apperrors.ErrInvalidArgument, "未知的订阅主题")
	ErrRoomIDRequired   = apperrors.New(apperrors.ErrInvalidArgument, "缺少 roomId")
)

// errNoPendingRequest aborts an accept whose request was already resolved.
var errNoPendingRequest = apperrors.New(apperrors.ErrConflict, "好友请求已不存在")

func userKey(id string) string    { return "user:" + id }
func profileKey(id string) string { return "profile:" + id }
func roomKey(id string) string    { return "room:" + id }

const roomListKey = "rooms"
