package auth

import "golang.org/x/crypto/bcrypt"

// passwordCost は新規ハッシュ作成時の bcrypt コストです。
const passwordCost = bcrypt.DefaultCost

// HashPassword はパスワードの bcrypt ハッシュを返します。
// 72 バイトを超えるパスワードはエラーになります。
func HashPassword[T ~string | ~[]byte](password T) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), passwordCost)
}

// ComparePassword はパスワードがハッシュと一致しなければエラーを返します。
func ComparePassword[T ~string | ~[]byte](password T, hash []byte) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
