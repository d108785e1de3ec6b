package protocol

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/cxsign/cxsign/pkg/common"
)

// Key identifies one wire endpoint or protocol literal.
type Key string

const (
	ActiveList         Key = "active-list"
	PreSign            Key = "pre-sign"
	PptSign            Key = "ppt-sign"
	Analysis           Key = "analysis"
	Analysis2          Key = "analysis-2"
	GetAttendInfo      Key = "get-attend-info"
	SignDetail         Key = "sign-detail"
	BackClazzData      Key = "back-clazz-data"
	GetLocationLog     Key = "get-location-log"
	AccountManage      Key = "account-manage"
	LoginPage          Key = "login-page"
	LoginEnc           Key = "login-enc"
	GetServerTime      Key = "get-server-time"
	GetCaptcha         Key = "get-captcha"
	CheckCaptcha       Key = "check-captcha"
	MySignCaptchaUtils Key = "my-sign-captcha-utils"
	CheckSigncode      Key = "check-signcode"
	PanChaoxing        Key = "pan-chaoxing"
	PanList            Key = "pan-list"
	PanToken           Key = "pan-token"
	PanUpload          Key = "pan-upload"

	CaptchaID Key = "captcha-id"
	UserAgent Key = "user-agent"
	QrcodePat Key = "qrcode-pat"
)

const registryFileName = "protocol.toml"

var defaults = map[Key]string{
	ActiveList:         "https://mobilelearn.chaoxing.com/v2/apis/active/student/activelist",
	PreSign:            "https://mobilelearn.chaoxing.com/newsign/preSign",
	PptSign:            "https://mobilelearn.chaoxing.com/pptSign/stuSignajax",
	Analysis:           "https://mobilelearn.chaoxing.com/pptSign/analysis?vs=1&DB_STRATEGY=RANDOM&aid=",
	Analysis2:          "https://mobilelearn.chaoxing.com/pptSign/analysis2?DB_STRATEGY=RANDOM&code=",
	GetAttendInfo:      "https://mobilelearn.chaoxing.com/v2/apis/sign/getAttendInfo",
	SignDetail:         "https://mobilelearn.chaoxing.com/newsign/signDetail",
	BackClazzData:      "https://mooc1-api.chaoxing.com/mycourse/backclazzdata",
	GetLocationLog:     "https://mobilelearn.chaoxing.com/v2/apis/sign/getLocationLog",
	AccountManage:      "https://passport2.chaoxing.com/mooc/accountManage",
	LoginPage:          "https://passport2.chaoxing.com/mlogin?loginType=1&newversion=true&fid=",
	LoginEnc:           "https://passport2.chaoxing.com/fanyalogin",
	GetServerTime:      "https://captcha.chaoxing.com/captcha/get/conf",
	GetCaptcha:         "https://captcha.chaoxing.com/captcha/get/verification/image",
	CheckCaptcha:       "https://captcha.chaoxing.com/captcha/check/verification/result",
	MySignCaptchaUtils: "https://mobilelearn.chaoxing.com/front/mobile/sign/js/mySignCaptchaUtils.js",
	CheckSigncode:      "https://mobilelearn.chaoxing.com/widget/sign/pcStuSignController/checkSignCode",
	PanChaoxing:        "https://pan-yz.chaoxing.com",
	PanList:            "https://pan-yz.chaoxing.com/opt/listres",
	PanToken:           "https://pan-yz.chaoxing.com/api/token/uservalid",
	PanUpload:          "https://pan-yz.chaoxing.com/upload",

	CaptchaID: "Qt9FIw9o4pwRjOyqM6yizZBh682qN2TU",
	UserAgent: "Mozilla/5.0 (Linux; Android 13; SM-G9910) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.5563.116 Mobile Safari/537.36 com.chaoxing.mobile/ChaoXingStudy_3_6.1.0_android_phone_906_100",
	QrcodePat: "https://mobilelearn.chaoxing.com/widget/sign/e",
}

// Registry is the process-wide read-mostly endpoint map. A single writer
// (Set/Update) goes through the lock and writes through to protocol.toml.
type Registry struct {
	mu     sync.RWMutex
	path   string
	values map[Key]string
}

// Load reads protocol.toml from dir, creating it with defaults when
// missing. A parse failure is reported but never fatal: the defaults win.
func Load(ctx context.Context, dir string) *Registry {
	r := &Registry{
		path:   filepath.Join(dir, registryFileName),
		values: make(map[Key]string, len(defaults)),
	}
	for k, v := range defaults {
		r.values[k] = v
	}

	raw := make(map[string]string)
	if _, err := toml.DecodeFile(r.path, &raw); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if perr := r.Persist(); perr != nil {
				slog.WarnContext(ctx, "Cannot create protocol registry file", "path", r.path, common.ErrAttr(perr))
			}
		} else {
			slog.WarnContext(ctx, "Cannot parse protocol registry file, using defaults", "path", r.path, common.ErrAttr(err))
		}
		return r
	}

	for k, v := range raw {
		if len(v) == 0 {
			continue
		}
		if _, ok := defaults[Key(k)]; ok {
			r.values[Key(k)] = v
		} else {
			slog.DebugContext(ctx, "Ignoring unknown protocol registry key", "key", k)
		}
	}

	return r
}

// NewDefault returns an in-memory registry that never persists. Intended
// for tests and embedding callers that manage their own config.
func NewDefault() *Registry {
	r := &Registry{
		values: make(map[Key]string, len(defaults)),
	}
	for k, v := range defaults {
		r.values[k] = v
	}
	return r
}

func (r *Registry) Get(key Key) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.values[key]
}

func (r *Registry) Set(key Key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = value
}

// Update writes value under key and persists, returning true only when
// the stored value actually changed.
func (r *Registry) Update(key Key, value string) bool {
	r.mu.Lock()
	if r.values[key] == value {
		r.mu.Unlock()
		return false
	}
	r.values[key] = value
	r.mu.Unlock()

	if err := r.Persist(); err != nil {
		slog.Warn("Cannot persist protocol registry", common.ErrAttr(err))
	}

	return true
}

func (r *Registry) Persist() error {
	r.mu.RLock()
	raw := make(map[string]string, len(r.values))
	for k, v := range r.values {
		raw[string(k)] = v
	}
	path := r.path
	r.mu.RUnlock()

	if len(path) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(raw)
}
