// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import "fmt"

// Códigos de comando, agrupados por faixa: autenticação 100–111, operações
// de arquivo 200–231, operações de diretório 240–251, status 300–301.
// Para todo request R, o código da resposta correspondente é R+1.
const (
	CmdLoginRequest          int32 = 100
	CmdLoginResponse         int32 = 101
	CmdLogoutRequest         int32 = 102
	CmdLogoutResponse        int32 = 103
	CmdCreateAccountRequest  int32 = 110
	CmdCreateAccountResponse int32 = 111

	CmdFileListRequest          int32 = 200
	CmdFileListResponse         int32 = 201
	CmdUploadInitRequest        int32 = 210
	CmdUploadInitResponse       int32 = 211
	CmdUploadChunkRequest       int32 = 212
	CmdUploadChunkResponse      int32 = 213
	CmdUploadCompleteRequest    int32 = 214
	CmdUploadCompleteResponse   int32 = 215
	CmdDownloadInitRequest      int32 = 220
	CmdDownloadInitResponse     int32 = 221
	CmdDownloadChunkRequest     int32 = 222
	CmdDownloadChunkResponse    int32 = 223
	CmdDownloadCompleteRequest  int32 = 224
	CmdDownloadCompleteResponse int32 = 225
	CmdFileDeleteRequest        int32 = 230
	CmdFileDeleteResponse       int32 = 231

	CmdDirectoryCreateRequest    int32 = 240
	CmdDirectoryCreateResponse   int32 = 241
	CmdDirectoryListRequest      int32 = 242
	CmdDirectoryListResponse     int32 = 243
	CmdDirectoryRenameRequest    int32 = 244
	CmdDirectoryRenameResponse   int32 = 245
	CmdDirectoryDeleteRequest    int32 = 246
	CmdDirectoryDeleteResponse   int32 = 247
	CmdFileMoveRequest           int32 = 248
	CmdFileMoveResponse          int32 = 249
	CmdDirectoryContentsRequest  int32 = 250
	CmdDirectoryContentsResponse int32 = 251

	CmdSuccess int32 = 300
	CmdError   int32 = 301
)

// commandNames mapeia códigos para nomes estáveis usados em logs e eventos.
var commandNames = map[int32]string{
	CmdLoginRequest:          "LoginRequest",
	CmdLoginResponse:         "LoginResponse",
	CmdLogoutRequest:         "LogoutRequest",
	CmdLogoutResponse:        "LogoutResponse",
	CmdCreateAccountRequest:  "CreateAccountRequest",
	CmdCreateAccountResponse: "CreateAccountResponse",

	CmdFileListRequest:          "FileListRequest",
	CmdFileListResponse:         "FileListResponse",
	CmdUploadInitRequest:        "FileUploadInitRequest",
	CmdUploadInitResponse:       "FileUploadInitResponse",
	CmdUploadChunkRequest:       "FileUploadChunkRequest",
	CmdUploadChunkResponse:      "FileUploadChunkResponse",
	CmdUploadCompleteRequest:    "FileUploadCompleteRequest",
	CmdUploadCompleteResponse:   "FileUploadCompleteResponse",
	CmdDownloadInitRequest:      "FileDownloadInitRequest",
	CmdDownloadInitResponse:     "FileDownloadInitResponse",
	CmdDownloadChunkRequest:     "FileDownloadChunkRequest",
	CmdDownloadChunkResponse:    "FileDownloadChunkResponse",
	CmdDownloadCompleteRequest:  "FileDownloadCompleteRequest",
	CmdDownloadCompleteResponse: "FileDownloadCompleteResponse",
	CmdFileDeleteRequest:        "FileDeleteRequest",
	CmdFileDeleteResponse:       "FileDeleteResponse",

	CmdDirectoryCreateRequest:    "DirectoryCreateRequest",
	CmdDirectoryCreateResponse:   "DirectoryCreateResponse",
	CmdDirectoryListRequest:      "DirectoryListRequest",
	CmdDirectoryListResponse:     "DirectoryListResponse",
	CmdDirectoryRenameRequest:    "DirectoryRenameRequest",
	CmdDirectoryRenameResponse:   "DirectoryRenameResponse",
	CmdDirectoryDeleteRequest:    "DirectoryDeleteRequest",
	CmdDirectoryDeleteResponse:   "DirectoryDeleteResponse",
	CmdFileMoveRequest:           "FileMoveRequest",
	CmdFileMoveResponse:          "FileMoveResponse",
	CmdDirectoryContentsRequest:  "DirectoryContentsRequest",
	CmdDirectoryContentsResponse: "DirectoryContentsResponse",

	CmdSuccess: "Success",
	CmdError:   "Error",
}

// requestCodes é o conjunto de códigos que iniciam um par request/response.
var requestCodes = map[int32]struct{}{
	CmdLoginRequest:             {},
	CmdLogoutRequest:            {},
	CmdCreateAccountRequest:     {},
	CmdFileListRequest:          {},
	CmdUploadInitRequest:        {},
	CmdUploadChunkRequest:       {},
	CmdUploadCompleteRequest:    {},
	CmdDownloadInitRequest:      {},
	CmdDownloadChunkRequest:     {},
	CmdDownloadCompleteRequest:  {},
	CmdFileDeleteRequest:        {},
	CmdDirectoryCreateRequest:   {},
	CmdDirectoryListRequest:     {},
	CmdDirectoryRenameRequest:   {},
	CmdDirectoryDeleteRequest:   {},
	CmdFileMoveRequest:          {},
	CmdDirectoryContentsRequest: {},
}

// CommandName retorna o nome estável de um código ("Unknown(N)" se não mapeado).
func CommandName(code int32) string {
	if name, ok := commandNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", code)
}

// IsRequest reporta se o código inicia um par request/response.
func IsRequest(code int32) bool {
	_, ok := requestCodes[code]
	return ok
}

// ResponseCommandCode retorna o código de resposta de um request (R+1).
// Pedir a resposta de um código que não é request é erro de programação.
func ResponseCommandCode(request int32) (int32, error) {
	if !IsRequest(request) {
		return 0, fmt.Errorf("protocol: command %d (%s) has no response code", request, CommandName(request))
	}
	return request + 1, nil
}
