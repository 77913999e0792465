package function

// AuthLevel 函数调用所需的最低权限级别
type AuthLevel string

const (
	AuthLevelPublic AuthLevel = "public"
	AuthLevelAuth   AuthLevel = "auth"
	AuthLevelAdmin  AuthLevel = "admin"
)

func (l AuthLevel) rank() int {
	switch l {
	case AuthLevelPublic:
		return 0
	case AuthLevelAuth:
		return 1
	case AuthLevelAdmin:
		return 2
	}
	return 3
}

// Valid 校验权限级别取值
func (l AuthLevel) Valid() bool {
	return l == AuthLevelPublic || l == AuthLevelAuth || l == AuthLevelAdmin
}

// Satisfies 判断调用方级别是否满足要求（meet-or-exceed）
func (l AuthLevel) Satisfies(required AuthLevel) bool {
	return l.rank() >= required.rank()
}
